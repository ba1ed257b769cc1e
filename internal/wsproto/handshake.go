package wsproto

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
)

// WebSocketGUID is the fixed GUID appended to the client key when computing
// the handshake accept value.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ErrMissingWebSocketKey reports an upgrade request without a
// Sec-WebSocket-Key header.
var ErrMissingWebSocketKey = fmt.Errorf("missing Sec-WebSocket-Key header")

// ComputeAccept derives the Sec-WebSocket-Accept value for a client key:
// SHA-1 over key+GUID, base64 encoded.
func ComputeAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// UpgradeResponse renders the complete 101 Switching Protocols response for
// the given client key.
func UpgradeResponse(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingWebSocketKey
	}
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: " + ComputeAccept(key) + "\r\n")
	b.WriteString("\r\n")
	return b.String(), nil
}
