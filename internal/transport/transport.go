package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/avaass/internal/reliability"
)

// State is the connection state of a Transport.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

var (
	ErrRetriesExhausted = errors.New("transport: reconnect attempts exhausted")
	ErrNotConnected     = errors.New("transport: not connected")
	ErrClosed           = errors.New("transport: closed")
)

// Handler receives inbound messages. Handlers run on the read goroutine and
// must not block.
type Handler func(Message)

type Policy = reliability.Policy

// Transport is a reconnecting websocket client.
type Transport struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	policy Policy
	name   string

	writeTimeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	err     error
	changed chan struct{}
	subs    map[int]Handler
	nextSub int
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	dropped *websocket.Conn

	writeMu sync.Mutex
}

// Option customizes a Transport.
type Option func(*Transport)

func WithHeader(h http.Header) Option { return func(t *Transport) { t.header = h } }

func WithName(name string) Option { return func(t *Transport) { t.name = name } }

func WithDialer(d *websocket.Dialer) Option { return func(t *Transport) { t.dialer = d } }

func New(url string, policy Policy, opts ...Option) *Transport {
	t := &Transport{
		url:          url,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		policy:       policy,
		name:         "transport",
		writeTimeout: 10 * time.Second,
		state:        StateDisconnected,
		changed:      make(chan struct{}),
		subs:         make(map[int]Handler),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect starts the connection loop and returns after the first dial outcome.
// A failed first dial is returned but the loop keeps retrying per the policy.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	loopCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.mu.Unlock()

	first := make(chan error, 1)
	go t.loop(loopCtx, first)

	select {
	case err := <-first:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// URL returns the dial target.
func (t *Transport) URL() string { return t.url }

// Subscribe registers h and returns a function that removes it.
func (t *Transport) Subscribe(h Handler) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = h
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the terminal error after the transport failed.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// WaitConnected blocks until the transport is connected, fails, closes or ctx ends.
func (t *Transport) WaitConnected(ctx context.Context) error {
	for {
		t.mu.Lock()
		state, err, ch := t.state, t.err, t.changed
		t.mu.Unlock()
		switch state {
		case StateConnected:
			return nil
		case StateFailed:
			return err
		case StateClosed:
			return ErrClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *Transport) SendBinary(ctx context.Context, data []byte) error {
	return t.write(ctx, websocket.BinaryMessage, data)
}

func (t *Transport) SendText(ctx context.Context, text string) error {
	return t.write(ctx, websocket.TextMessage, []byte(text))
}

func (t *Transport) SendJSON(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return t.write(ctx, websocket.TextMessage, b)
}

// Close stops reconnecting and closes the socket.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return nil
	}
	started := t.started
	cancel := t.cancel
	conn := t.conn
	t.conn = nil
	t.setStateLocked(StateClosed, nil)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		_ = conn.Close()
	}
	if started {
		<-t.done
	}
	return nil
}

// Drop closes the current socket and redials without waiting for the backoff.
// Frames still in flight on the old socket are never delivered after the
// transport reports connected again.
func (t *Transport) Drop() {
	t.mu.Lock()
	conn := t.conn
	if conn == nil || t.state == StateClosed {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.dropped = conn
	t.setStateLocked(StateDisconnected, nil)
	t.mu.Unlock()
	_ = conn.Close()
}

func (t *Transport) write(ctx context.Context, messageType int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	conn, state := t.conn, t.state
	t.mu.Unlock()
	if state == StateClosed {
		return ErrClosed
	}
	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	return conn.WriteMessage(messageType, data)
}

func (t *Transport) loop(ctx context.Context, first chan<- error) {
	defer close(t.done)
	reported := false
	report := func(err error) {
		if !reported {
			reported = true
			first <- err
		}
	}

	failures := 0
	for {
		t.setState(StateConnecting, nil)
		conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
		if err != nil {
			if ctx.Err() != nil {
				report(ErrClosed)
				return
			}
			failures++
			log.Printf("%s dial %s failed (attempt %d): %v", t.name, t.url, failures, err)
			report(err)
			if t.policy.Exhausted(failures) {
				t.fail(ErrRetriesExhausted)
				return
			}
			t.setState(StateDisconnected, nil)
			if !sleepCtx(ctx, t.policy.Delay(failures-1)) {
				return
			}
			continue
		}

		failures = 0
		t.mu.Lock()
		if t.state == StateClosed {
			t.mu.Unlock()
			_ = conn.Close()
			report(ErrClosed)
			return
		}
		t.conn = conn
		t.setStateLocked(StateConnected, nil)
		t.mu.Unlock()
		report(nil)

		err = t.readLoop(conn)

		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		closed := t.state == StateClosed
		redial := t.dropped == conn
		t.dropped = nil
		t.mu.Unlock()
		_ = conn.Close()
		if closed || ctx.Err() != nil {
			t.publish(Message{Kind: KindClosed, Text: ErrClosed.Error(), Err: ErrClosed})
			return
		}
		if redial {
			log.Printf("%s connection to %s dropped, redialing", t.name, t.url)
		} else {
			log.Printf("%s connection to %s lost: %v", t.name, t.url, err)
		}
		t.setState(StateDisconnected, nil)
		t.publish(Message{Kind: KindClosed, Text: err.Error(), Err: err})
		if !redial && !sleepCtx(ctx, t.policy.Delay(0)) {
			return
		}
	}
}

func (t *Transport) readLoop(conn *websocket.Conn) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		switch messageType {
		case websocket.BinaryMessage:
			t.publish(Classify(true, data))
		case websocket.TextMessage:
			t.publish(Classify(false, data))
		}
	}
}

func (t *Transport) fail(err error) {
	t.setState(StateFailed, err)
	t.publish(Message{Kind: KindError, Text: err.Error(), Err: err})
}

func (t *Transport) publish(msg Message) {
	t.mu.Lock()
	handlers := make([]Handler, 0, len(t.subs))
	for _, h := range t.subs {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (t *Transport) setState(s State, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateClosed {
		return
	}
	t.setStateLocked(s, err)
}

func (t *Transport) setStateLocked(s State, err error) {
	if t.state == s && err == nil {
		return
	}
	t.state = s
	if err != nil {
		t.err = err
	}
	close(t.changed)
	t.changed = make(chan struct{})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
