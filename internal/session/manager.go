package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names the socket a connection was accepted on.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindSynthesis     Kind = "synthesis"
)

type State string

const (
	StateOpen     State = "open"
	StateErroring State = "erroring"
	StateClosed   State = "closed"
)

var ErrNotFound = errors.New("connection not found")

type Connection struct {
	ID          string    `json:"connection_id"`
	Kind        Kind      `json:"kind"`
	State       State     `json:"state"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at,omitempty"`
	CloseReason string    `json:"close_reason,omitempty"`
}

// Manager tracks accepted websocket connections. Closed records are kept for
// the retention window and then purged by the janitor.
type Manager struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	retention time.Duration
	onClose   func(*Connection)
}

func NewManager(retention time.Duration) *Manager {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &Manager{
		conns:     make(map[string]*Connection),
		retention: retention,
	}
}

// SetCloseHook registers a callback invoked once per connection when it closes.
func (m *Manager) SetCloseHook(hook func(*Connection)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = hook
}

func (m *Manager) Open(kind Kind, remoteAddr string) *Connection {
	c := &Connection{
		ID:         uuid.NewString(),
		Kind:       kind,
		State:      StateOpen,
		RemoteAddr: remoteAddr,
		OpenedAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.ID] = c
	return clone(c)
}

func (m *Manager) Get(id string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

// IsOpen reports whether results may still be delivered to the connection.
func (m *Manager) IsOpen(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return ok && c.State == StateOpen
}

// MarkErroring flags a connection whose socket reported an error. It is closed
// by the handler shortly after.
func (m *Manager) MarkErroring(id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return ErrNotFound
	}
	if c.State == StateOpen {
		c.State = StateErroring
		c.CloseReason = reason
	}
	return nil
}

// Close marks the connection closed. Closing twice is a no-op.
func (m *Manager) Close(id, reason string) (*Connection, error) {
	m.mu.Lock()
	c, ok := m.conns[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if c.State == StateClosed {
		out := clone(c)
		m.mu.Unlock()
		return out, nil
	}
	c.State = StateClosed
	c.ClosedAt = time.Now().UTC()
	if c.CloseReason == "" {
		c.CloseReason = reason
	}
	out := clone(c)
	hook := m.onClose
	m.mu.Unlock()

	if hook != nil {
		hook(clone(out))
	}
	return out, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.purgeClosed()
			}
		}
	}()
}

// ActiveCount returns the number of connections not yet closed.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, c := range m.conns {
		if c.State != StateClosed {
			count++
		}
	}
	return count
}

func (m *Manager) purgeClosed() int {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for id, c := range m.conns {
		if c.State != StateClosed {
			continue
		}
		if now.Sub(c.ClosedAt) < m.retention {
			continue
		}
		delete(m.conns, id)
		purged++
	}
	return purged
}

func clone(c *Connection) *Connection {
	out := *c
	return &out
}
