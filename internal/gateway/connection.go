package gateway

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skyfield-data/originsim/internal/dispatch"
	"github.com/skyfield-data/originsim/internal/emit"
	"github.com/skyfield-data/originsim/internal/monitoring"
	"github.com/skyfield-data/originsim/internal/telescope"
	"github.com/skyfield-data/originsim/internal/timeutil"
	"github.com/skyfield-data/originsim/internal/wsproto"
)

// Connection lifecycle states.
const (
	StateHandshaking int32 = iota
	StateLive
	StateTimedOut
	StateClosed
)

const (
	heartbeatInterval = 5 * time.Second
	pongTimeout       = 15 * time.Second
	maxMissedPongs    = 3
	closeGrace        = time.Second
	writeTimeout      = 10 * time.Second
)

// Conn owns one upgraded WebSocket client: it runs the frame codec over the
// socket, generates heartbeat pings, tracks pong liveness, and feeds inbound
// text messages to the dispatcher on the run loop.
type Conn struct {
	id         uuid.UUID
	sock       net.Conn
	loop       *telescope.Loop
	clock      timeutil.Clock
	dispatcher *dispatch.Dispatcher
	hub        *emit.Hub

	state atomic.Int32

	writeMu      sync.Mutex
	writeTimeout time.Duration

	hbMu      sync.Mutex
	pingSeq   int
	missed    int
	lastPong  time.Time
	hbStop    chan struct{}
	hbStopped bool
}

func newConn(sock net.Conn, loop *telescope.Loop, clock timeutil.Clock, dispatcher *dispatch.Dispatcher, hub *emit.Hub) *Conn {
	c := &Conn{
		sock:         sock,
		loop:         loop,
		clock:        clock,
		dispatcher:   dispatcher,
		hub:          hub,
		writeTimeout: writeTimeout,
		hbStop:       make(chan struct{}),
	}
	c.state.Store(StateHandshaking)
	return c
}

// SendText queues one unmasked text frame to the client. Implements
// emit.Sender.
func (c *Conn) SendText(payload []byte) error {
	return c.writeFrame(wsproto.OpcodeText, payload)
}

func (c *Conn) writeFrame(opcode byte, payload []byte) error {
	if c.state.Load() == StateClosed {
		return errors.New("connection closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	// A client that stops reading must not pin the write lock: broadcasts on
	// the run loop and the heartbeat's eviction path both funnel through
	// here. An expired deadline is an ordinary send failure.
	c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	_, err := c.sock.Write(wsproto.EncodeFrame(opcode, payload, nil))
	c.sock.SetWriteDeadline(time.Time{})
	return err
}

// run services the connection until it dies: registers with the hub, starts
// the heartbeat, then reads frames. residual carries any bytes the sniffer
// buffered past the end of the upgrade request.
func (c *Conn) run(residual []byte) {
	c.state.Store(StateLive)
	c.id = c.hub.Register(c)
	defer func() {
		c.hub.Unregister(c.id)
		c.teardown()
	}()

	go c.heartbeat()

	buf := append([]byte(nil), residual...)
	tmp := make([]byte, 4096)
	for {
		for {
			frame, consumed, err := wsproto.DecodeFrame(buf, true)
			if err != nil {
				monitoring.Logf("connection %s: protocol error: %v", c.id, err)
				c.closeWith(wsproto.CloseProtocolError, "protocol error")
				return
			}
			if consumed == 0 {
				break
			}
			buf = buf[consumed:]
			if done := c.handleFrame(frame); done {
				return
			}
		}

		n, err := c.sock.Read(tmp)
		if err != nil {
			return
		}
		buf = append(buf, tmp[:n]...)
	}
}

// handleFrame reacts to one complete inbound frame. Returns true when the
// read loop should stop.
func (c *Conn) handleFrame(frame wsproto.Frame) bool {
	switch frame.Opcode {
	case wsproto.OpcodeText:
		payload := append([]byte(nil), frame.Payload...)
		c.loop.Post(func() {
			resp, err := c.dispatcher.Dispatch(payload)
			if err != nil {
				monitoring.Logf("connection %s: bad command: %v", c.id, err)
				return
			}
			if resp != nil {
				c.hub.Send(c.id, resp)
			}
		})
	case wsproto.OpcodePing:
		if err := c.writeFrame(wsproto.OpcodePong, frame.Payload); err != nil {
			monitoring.Logf("connection %s: pong write failed: %v", c.id, err)
		}
	case wsproto.OpcodePong:
		c.hbMu.Lock()
		c.missed = 0
		c.lastPong = c.clock.Now()
		c.hbMu.Unlock()
	case wsproto.OpcodeClose:
		status, _ := wsproto.DecodeClose(frame.Payload)
		_ = c.writeFrame(wsproto.OpcodeClose, frame.Payload)
		monitoring.Logf("connection %s: client close (status %d)", c.id, status)
		c.stopHeartbeat()
		c.state.Store(StateClosed)
		c.clock.AfterFunc(closeGrace, func() { c.sock.Close() })
		return true
	default:
		monitoring.Logf("connection %s: discarding %s frame", c.id, wsproto.OpcodeName(frame.Opcode))
	}
	return false
}

// heartbeat sends a ping every 5 s and arms a 15 s pong deadline per ping.
// Three consecutive deadlines with no pong evict the client.
func (c *Conn) heartbeat() {
	ticker := c.clock.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.hbStop:
			return
		case <-ticker.C():
			c.sendPing()
		}
	}
}

func (c *Conn) sendPing() {
	c.hbMu.Lock()
	n := c.pingSeq
	c.pingSeq++
	c.hbMu.Unlock()

	if err := c.writeFrame(wsproto.OpcodePing, wsproto.HeartbeatPayload(uint64(n))); err != nil {
		monitoring.Logf("connection %s: ping write failed: %v", c.id, err)
		return
	}

	sentAt := c.clock.Now()
	c.clock.AfterFunc(pongTimeout, func() {
		c.hbMu.Lock()
		if !c.lastPong.Before(sentAt) {
			c.hbMu.Unlock()
			return
		}
		c.missed++
		missed := c.missed
		c.hbMu.Unlock()

		if missed >= maxMissedPongs && c.state.CompareAndSwap(StateLive, StateTimedOut) {
			monitoring.Logf("connection %s: %d missed pongs, evicting", c.id, missed)
			c.closeWith(wsproto.CloseInternalServerErr, "Ping timeout")
		}
	})
}

// closeWith sends a Close frame and shuts the socket after the grace period.
func (c *Conn) closeWith(status uint16, reason string) {
	_ = c.writeFrame(wsproto.OpcodeClose, wsproto.EncodeClose(status, reason))
	c.stopHeartbeat()
	c.state.Store(StateClosed)
	c.clock.AfterFunc(closeGrace, func() { c.sock.Close() })
}

// shutdown closes the connection for server exit with a normal-closure code.
func (c *Conn) shutdown() {
	if c.state.Load() == StateClosed {
		return
	}
	_ = c.writeFrame(wsproto.OpcodeClose, wsproto.EncodeClose(wsproto.CloseNormalClosure, "server shutting down"))
	c.stopHeartbeat()
	c.state.Store(StateClosed)
	c.sock.Close()
}

func (c *Conn) stopHeartbeat() {
	c.hbMu.Lock()
	defer c.hbMu.Unlock()
	if !c.hbStopped {
		c.hbStopped = true
		close(c.hbStop)
	}
}

func (c *Conn) teardown() {
	c.stopHeartbeat()
	// A connection already marked closed has a grace-period close scheduled;
	// leave its socket to that.
	if c.state.Swap(StateClosed) != StateClosed {
		c.sock.Close()
	}
}
