// Package emit owns the live connection table and the periodic notification
// schedule. Registration, sends, and broadcasts all run on the telescope run
// loop so the table needs no lock of its own.
package emit

import (
	"github.com/google/uuid"

	"github.com/skyfield-data/originsim/internal/monitoring"
	"github.com/skyfield-data/originsim/internal/telescope"
)

// Sender delivers one outbound text message to a client. Connections
// implement it; SendText queues the frame on the connection's writer.
type Sender interface {
	SendText(payload []byte) error
}

// Hub is the registry of live connections.
type Hub struct {
	loop  *telescope.Loop
	conns map[uuid.UUID]Sender
}

// NewHub creates an empty hub bound to the run loop.
func NewHub(loop *telescope.Loop) *Hub {
	return &Hub{
		loop:  loop,
		conns: make(map[uuid.UUID]Sender),
	}
}

// Register adds a connection under a fresh id and returns that id. Safe to
// call from any goroutine.
func (h *Hub) Register(s Sender) uuid.UUID {
	id := uuid.New()
	h.loop.Post(func() {
		h.conns[id] = s
	})
	return id
}

// Unregister drops a connection. Safe to call from any goroutine and
// idempotent.
func (h *Hub) Unregister(id uuid.UUID) {
	h.loop.Post(func() {
		delete(h.conns, id)
	})
}

// Len reports the number of registered connections. Loop-only.
func (h *Hub) Len() int {
	return len(h.conns)
}

// ConnectionIDs lists the ids of every registered connection. Loop-only.
func (h *Hub) ConnectionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	return ids
}

// Send delivers payload to one connection. Loop-only. A send failure is not
// fatal; the heartbeat decides whether the connection survives.
func (h *Hub) Send(id uuid.UUID, payload []byte) {
	s, ok := h.conns[id]
	if !ok {
		return
	}
	if err := s.SendText(payload); err != nil {
		monitoring.Logf("send to connection %s failed: %v", id, err)
	}
}

// Broadcast delivers payload to every registered connection. Loop-only.
func (h *Hub) Broadcast(payload []byte) {
	for id, s := range h.conns {
		if err := s.SendText(payload); err != nil {
			monitoring.Logf("broadcast to connection %s failed: %v", id, err)
		}
	}
}
