package httpapi

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/avaass/internal/batch"
	"github.com/ent0n29/avaass/internal/session"
)

const (
	writeTimeout = 10 * time.Second
	outboundSize = 64
)

// frame is one queued websocket write.
type frame struct {
	msgType int
	data    []byte
	label   string
}

func jsonFrame(label string, v any) (frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return frame{}, err
	}
	return frame{msgType: websocket.TextMessage, data: b, label: label}, nil
}

// socketWriter serializes writes to one connection.
type socketWriter struct {
	out  chan frame
	done chan struct{}
}

func (s *Server) startWriter(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) *socketWriter {
	sw := &socketWriter{out: make(chan frame, outboundSize), done: make(chan struct{})}
	go func() {
		defer close(sw.done)
		ping := time.NewTicker(s.cfg.WSReadTimeout / 2)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					cancel()
					return
				}
			case f := <-sw.out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(f.msgType, f.data); err != nil {
					cancel()
					return
				}
				s.metrics.WSMessages.WithLabelValues("outbound", f.label).Inc()
			}
		}
	}()
	return sw
}

// send queues f unless ctx ends first.
func (sw *socketWriter) send(ctx context.Context, f frame) bool {
	select {
	case <-ctx.Done():
		return false
	case sw.out <- f:
		return true
	}
}

// configureRead arms the read deadline. Callers extend it after every
// message; pongs to the writer's pings extend it while the peer is idle.
func (s *Server) configureRead(conn *websocket.Conn) {
	conn.SetReadLimit(4 << 20)
	s.extendRead(conn)
	conn.SetPongHandler(func(string) error {
		s.extendRead(conn)
		return nil
	})
}

func (s *Server) extendRead(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
}

// closeReason maps a read error to a connection close reason.
func closeReason(err error) (string, bool) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return "client closed", false
	}
	return err.Error(), true
}

func (s *Server) openConnection(kind session.Kind, remote string) *session.Connection {
	c := s.sessions.Open(kind, remote)
	s.metrics.ActiveConnections.WithLabelValues(string(kind)).Inc()
	s.metrics.ConnectionEvents.WithLabelValues(string(kind), "opened").Inc()
	return c
}

func (s *Server) closeConnection(c *session.Connection, readErr error) {
	reason := "server shutdown"
	if readErr != nil {
		var failed bool
		reason, failed = closeReason(readErr)
		if failed {
			_ = s.sessions.MarkErroring(c.ID, reason)
			s.metrics.ConnectionEvents.WithLabelValues(string(c.Kind), "error").Inc()
		}
	}
	if _, err := s.sessions.Close(c.ID, reason); err == nil {
		s.metrics.ActiveConnections.WithLabelValues(string(c.Kind)).Dec()
		s.metrics.ConnectionEvents.WithLabelValues(string(c.Kind), "closed").Inc()
	}
}

// queueRegistry maps connection ids to their batch queues.
type queueRegistry struct {
	mu     sync.RWMutex
	queues map[string]*batch.Queue
}

func newQueueRegistry() *queueRegistry {
	return &queueRegistry{queues: make(map[string]*batch.Queue)}
}

func (r *queueRegistry) add(id string, q *batch.Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[id] = q
}

func (r *queueRegistry) get(id string) (*batch.Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[id]
	return q, ok
}

func (r *queueRegistry) remove(id string) *batch.Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.queues[id]
	delete(r.queues, id)
	return q
}
