package chat

import (
	"context"
	"log/slog"
	"sync"
)

// Conn is one live client connection as seen by the coordinator.
type Conn interface {
	ID() ConnID
	Identity() Identity
	// Deliver queues frame without blocking.
	Deliver(frame []byte) error
	Close()
}

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateActive
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	default:
		return "disconnected"
	}
}

type session struct {
	conn  Conn
	state ConnState
}

type connTable struct {
	mu       sync.RWMutex
	sessions map[ConnID]*session
}

func newConnTable() *connTable {
	return &connTable{sessions: make(map[ConnID]*session)}
}

func (t *connTable) add(c Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[c.ID()] = &session{conn: c, state: StateConnecting}
}

// activate moves a connecting session to active; it fails if the session is already gone.
func (t *connTable) activate(id ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return false
	}
	s.state = StateActive
	return true
}

func (t *connTable) remove(id ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[id]; !ok {
		return false
	}
	delete(t.sessions, id)
	return true
}

func (t *connTable) state(id ConnID) ConnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.sessions[id]; ok {
		return s.state
	}
	return StateDisconnected
}

func (t *connTable) get(id ConnID) (Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	return s.conn, true
}

func (t *connTable) ids() []ConnID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ConnID, 0, len(t.sessions))
	for id := range t.sessions {
		out = append(out, id)
	}
	return out
}

func (t *connTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// fanout delivers one frame to many connections. A failing connection is
// logged and skipped; it never stops delivery to the rest.
type fanout struct {
	conns   *connTable
	log     *slog.Logger
	metrics *metrics
}

func (f *fanout) send(ctx context.Context, event string, frame []byte, targets []ConnID) int {
	delivered := 0
	for _, id := range targets {
		if err := f.deliver(id, frame); err != nil {
			f.metrics.dropped(ctx, event)
			f.log.Debug("Delivery dropped", "event", event, "conn_id", id, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (f *fanout) deliver(id ConnID, frame []byte) error {
	c, ok := f.conns.get(id)
	if !ok {
		return ErrConnClosed
	}
	return c.Deliver(frame)
}

// event encodes and sends; encoding failures are logged.
func (f *fanout) event(ctx context.Context, name string, data any, targets ...ConnID) int {
	frame, err := encodeEvent(name, data)
	if err != nil {
		f.log.Error("Failed to encode event", "event", name, "error", err)
		return 0
	}
	return f.send(ctx, name, frame, targets)
}
