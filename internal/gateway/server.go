// Package gateway accepts TCP connections on the single device port and
// routes each one by sniffing its HTTP header block: WebSocket upgrades on
// the control endpoint become live connections, image GETs are answered
// directly, everything else is a 404.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/skyfield-data/originsim/internal/dispatch"
	"github.com/skyfield-data/originsim/internal/emit"
	"github.com/skyfield-data/originsim/internal/monitoring"
	"github.com/skyfield-data/originsim/internal/telescope"
	"github.com/skyfield-data/originsim/internal/timeutil"
	"github.com/skyfield-data/originsim/internal/wsproto"
)

const (
	// ControlPath is the WebSocket control endpoint.
	ControlPath = "/SmartScope-1.0/mountControlEndpoint"
	// PreviewPathPrefix serves the current preview snapshot.
	PreviewPathPrefix = "/SmartScope-1.0/dev2/Images/Temp/"
	// AstroPathMarker routes saved astrophotography files.
	AstroPathMarker = "/SmartScope-1.0/dev2/Images/Astrophotography/"

	maxHeaderBytes = 8192
)

var headerEnd = []byte("\r\n\r\n")

// PreviewSource yields the current preview image blob.
type PreviewSource interface {
	Bytes() []byte
}

// FileResolver maps astrophotography URL segments onto a served file.
type FileResolver interface {
	ResolveFile(dir, name string) (path, contentType string, err error)
}

// FileReader loads a resolved file from disk. Split from FileResolver so
// tests can serve from memory.
type FileReader func(path string) ([]byte, error)

// Server is the dual-protocol listener.
type Server struct {
	addr       string
	loop       *telescope.Loop
	clock      timeutil.Clock
	dispatcher *dispatch.Dispatcher
	hub        *emit.Hub
	preview    PreviewSource
	resolver   FileResolver
	readFile   FileReader

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewServer builds a gateway listening on addr. resolver may be nil, in
// which case astrophotography paths 404.
func NewServer(addr string, loop *telescope.Loop, clock timeutil.Clock, dispatcher *dispatch.Dispatcher, hub *emit.Hub, preview PreviewSource, resolver FileResolver, readFile FileReader) *Server {
	return &Server{
		addr:       addr,
		loop:       loop,
		clock:      clock,
		dispatcher: dispatcher,
		hub:        hub,
		preview:    preview,
		resolver:   resolver,
		readFile:   readFile,
		conns:      map[*Conn]struct{}{},
	}
}

// Run listens until the context is cancelled, then closes every live
// connection with a normal-closure frame.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on an already bound listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	monitoring.Logf("control listener on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		ln.Close()
		s.mu.Lock()
		for c := range s.conns {
			c.shutdown()
		}
		s.mu.Unlock()
	}()

	for {
		sock, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go s.serveConn(sock)
	}
}

// serveConn sniffs one accepted socket and routes it.
func (s *Server) serveConn(sock net.Conn) {
	buf := make([]byte, 0, 1024)
	tmp := make([]byte, 1024)
	var headerLen int
	for {
		if i := bytes.Index(buf, headerEnd); i >= 0 {
			headerLen = i + len(headerEnd)
			break
		}
		if len(buf) >= maxHeaderBytes {
			sock.Close()
			return
		}
		// Never buffer past the header cap; bytes beyond it stay unread in
		// the socket for the upgraded connection to consume.
		limit := maxHeaderBytes - len(buf)
		if limit > len(tmp) {
			limit = len(tmp)
		}
		n, err := sock.Read(tmp[:limit])
		if err != nil {
			sock.Close()
			return
		}
		buf = append(buf, tmp[:n]...)
	}

	req, ok := parseRequestHead(buf[:headerLen])
	if !ok {
		sock.Close()
		return
	}
	residual := buf[headerLen:]

	switch {
	case req.isUpgrade() && req.path == ControlPath:
		s.upgrade(sock, req, residual)
	case req.method == "GET" && strings.HasPrefix(req.path, PreviewPathPrefix):
		s.servePreview(sock)
	case req.method == "GET" && strings.Contains(req.path, AstroPathMarker):
		s.serveAstroFile(sock, req.path)
	default:
		writeHTTPResponse(sock, "404 Not Found", "text/plain", []byte("Not Found"))
		sock.Close()
	}
}

func (s *Server) upgrade(sock net.Conn, req *requestHead, residual []byte) {
	resp, err := wsproto.UpgradeResponse(req.header("sec-websocket-key"))
	if err != nil {
		monitoring.Logf("upgrade from %s failed: %v", sock.RemoteAddr(), err)
		writeHTTPResponse(sock, "400 Bad Request", "text/plain", []byte("Bad Request"))
		sock.Close()
		return
	}
	if _, err := sock.Write([]byte(resp)); err != nil {
		sock.Close()
		return
	}

	c := newConn(sock, s.loop, s.clock, s.dispatcher, s.hub)
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	c.run(residual)

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) servePreview(sock net.Conn) {
	defer sock.Close()
	blob := s.preview.Bytes()
	if len(blob) == 0 {
		writeHTTPResponse(sock, "404 Not Found", "text/plain", []byte("no preview available"))
		return
	}
	writeHTTPResponse(sock, "200 OK", "image/jpeg", blob)
}

func (s *Server) serveAstroFile(sock net.Conn, path string) {
	defer sock.Close()
	if s.resolver == nil || s.readFile == nil {
		writeHTTPResponse(sock, "404 Not Found", "text/plain", []byte("Not Found"))
		return
	}
	// The trailing two segments name the session directory and file.
	trimmed := strings.TrimSuffix(path, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		writeHTTPResponse(sock, "404 Not Found", "text/plain", []byte("Not Found"))
		return
	}
	dir, name := parts[len(parts)-2], parts[len(parts)-1]

	full, contentType, err := s.resolver.ResolveFile(dir, name)
	if err != nil {
		monitoring.Logf("image request %s rejected: %v", path, err)
		writeHTTPResponse(sock, "404 Not Found", "text/plain", []byte("Not Found"))
		return
	}
	blob, err := s.readFile(full)
	if err != nil {
		monitoring.Logf("image read %s failed: %v", full, err)
		writeHTTPResponse(sock, "404 Not Found", "text/plain", []byte("Not Found"))
		return
	}
	writeHTTPResponse(sock, "200 OK", contentType, blob)
}

// requestHead is the parsed first line plus headers of a sniffed request.
type requestHead struct {
	method  string
	path    string
	headers map[string]string
}

func (r *requestHead) header(name string) string {
	return r.headers[strings.ToLower(name)]
}

func (r *requestHead) isUpgrade() bool {
	return strings.EqualFold(r.header("upgrade"), "websocket")
}

// parseRequestHead splits the header block. A request line with fewer than
// three parts is malformed and drops the socket.
func parseRequestHead(raw []byte) (*requestHead, bool) {
	lines := strings.Split(string(raw), "\r\n")
	if len(lines) == 0 {
		return nil, false
	}
	parts := strings.Fields(lines[0])
	if len(parts) < 3 {
		return nil, false
	}
	req := &requestHead{
		method:  parts[0],
		path:    parts[1],
		headers: map[string]string{},
	}
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		k, v, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		req.headers[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return req, true
}

// writeHTTPResponse renders one complete close-delimited HTTP response.
func writeHTTPResponse(sock net.Conn, status, contentType string, body []byte) {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %s\r\n", status)
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n")
	b.WriteString("Cache-Control: no-cache\r\n")
	b.WriteString("Access-Control-Allow-Origin: *\r\n")
	b.WriteString("\r\n")

	if _, err := sock.Write([]byte(b.String())); err != nil {
		return
	}
	if _, err := sock.Write(body); err != nil {
		monitoring.Logf("response body write to %s failed: %v", sock.RemoteAddr(), err)
	}
}
