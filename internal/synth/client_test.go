package synth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/avaass/internal/protocol"
	"github.com/ent0n29/avaass/internal/transport"
)

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) hook(_ string, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	parts := make([]string, len(l.states))
	for i, s := range l.states {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

// fakeServer serves POST /synthesize and the /tts stream.
func fakeServer(t *testing.T, restStatus int, stream func(*websocket.Conn, protocol.SynthesisRequest)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		if restStatus != http.StatusOK {
			http.Error(w, `{"error":"down"}`, restStatus)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("X-Voice-Clone", "true")
		_, _ = w.Write([]byte("rest-audio"))
	})
	mux.HandleFunc("/tts", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req protocol.SynthesisRequest
			_ = json.Unmarshal(data, &req)
			stream(conn, req)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientUsesRESTFirst(t *testing.T) {
	srv := fakeServer(t, http.StatusOK, func(*websocket.Conn, protocol.SynthesisRequest) {
		t.Errorf("stream used although REST succeeded")
	})
	log := &stateLog{}
	c, err := NewClient(srv.URL, WithStateHook(log.hook))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	res, err := c.Synthesize(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(res.Audio) != "rest-audio" || res.Mode != ModeREST || !res.Cloned {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := log.String(); got != "pending,rest_sent,rest_ok,complete" {
		t.Fatalf("states = %s", got)
	}
}

func TestClientFallsBackToStream(t *testing.T) {
	srv := fakeServer(t, http.StatusServiceUnavailable, func(conn *websocket.Conn, req protocol.SynthesisRequest) {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("part1-"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("part2"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(protocol.StreamEnd))
	})
	log := &stateLog{}
	c, err := NewClient(srv.URL, WithStateHook(log.hook), WithStreamPolicy(transport.Policy{Backoff: 20 * time.Millisecond}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	res, err := c.Synthesize(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(res.Audio) != "part1-part2" || res.Mode != ModeStream {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := log.String(); got != "pending,rest_sent,rest_fail,ws_wait,ws_sent,complete" {
		t.Fatalf("states = %s", got)
	}
}

func TestClientStreamErrorSentinel(t *testing.T) {
	srv := fakeServer(t, http.StatusInternalServerError, func(conn *websocket.Conn, req protocol.SynthesisRequest) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(protocol.StreamError("model not loaded")))
	})
	c, err := NewClient(srv.URL, WithStreamPolicy(transport.Policy{Backoff: 20 * time.Millisecond}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	_, err = c.Synthesize(context.Background(), Request{Text: "hello"})
	if err == nil || err.Error() != "model not loaded" {
		t.Fatalf("Synthesize() error = %v, want %q", err, "model not loaded")
	}
}

func TestClientStreamUnavailable(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", WithConnectWait(100*time.Millisecond), WithStreamPolicy(transport.Policy{Backoff: 20 * time.Millisecond}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	log := &stateLog{}
	c.hook = log.hook
	if _, err := c.Synthesize(context.Background(), Request{Text: "hello"}); err == nil {
		t.Fatalf("Synthesize() error = nil, want failure")
	}
	if !strings.HasSuffix(log.String(), "ws_wait,failed") {
		t.Fatalf("states = %s, want ...ws_wait,failed", log.String())
	}
}

func TestClientRejectsEmptyText(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := c.Synthesize(context.Background(), Request{Text: " "}); err != ErrEmptyText {
		t.Fatalf("Synthesize() error = %v, want ErrEmptyText", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://x", "::"} {
		if _, err := NewClient(raw); err == nil {
			t.Fatalf("NewClient(%q) error = nil", raw)
		}
	}
}

func TestClientStreamDropFailsPendingRequest(t *testing.T) {
	var calls atomic.Int32
	srv := fakeServer(t, http.StatusInternalServerError, func(conn *websocket.Conn, req protocol.SynthesisRequest) {
		if calls.Add(1) == 1 {
			_ = conn.WriteMessage(websocket.BinaryMessage, make([]byte, 4096))
			_ = conn.Close()
			return
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("after-reconnect"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(protocol.StreamEnd))
	})
	c, err := NewClient(srv.URL, WithStreamPolicy(transport.Policy{Backoff: 20 * time.Millisecond}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = c.Synthesize(ctx, Request{Text: "hello"})
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Synthesize() error = %v, want stream closed error", err)
	}

	res, err := c.Synthesize(ctx, Request{Text: "again"})
	if err != nil {
		t.Fatalf("Synthesize() after reconnect error = %v", err)
	}
	if string(res.Audio) != "after-reconnect" {
		t.Fatalf("audio = %q, want after-reconnect", res.Audio)
	}
}

func TestClientAbandonedStreamDoesNotLeakIntoNextRequest(t *testing.T) {
	srv := fakeServer(t, http.StatusInternalServerError, func(conn *websocket.Conn, req protocol.SynthesisRequest) {
		if req.Text == "first" {
			time.Sleep(300 * time.Millisecond)
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("audio-for-"+req.Text))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(protocol.StreamEnd))
	})
	c, err := NewClient(srv.URL, WithStreamPolicy(transport.Policy{Backoff: 20 * time.Millisecond}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	short, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	_, err = c.Synthesize(short, Request{Text: "first"})
	cancel()
	if err == nil {
		t.Fatalf("Synthesize(first) error = nil, want timeout")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := c.Synthesize(ctx, Request{Text: "second"})
	if err != nil {
		t.Fatalf("Synthesize(second) error = %v", err)
	}
	if string(res.Audio) != "audio-for-second" {
		t.Fatalf("audio = %q, want audio-for-second", res.Audio)
	}
}

func TestClientStreamTimeout(t *testing.T) {
	srv := fakeServer(t, http.StatusInternalServerError, func(conn *websocket.Conn, req protocol.SynthesisRequest) {
		if req.Text == "slow" {
			return
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("ok"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(protocol.StreamEnd))
	})
	c, err := NewClient(srv.URL, WithStreamTimeout(100*time.Millisecond), WithStreamPolicy(transport.Policy{Backoff: 20 * time.Millisecond}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Synthesize(context.Background(), Request{Text: "slow"}); err == nil {
		t.Fatalf("Synthesize(slow) error = nil, want timeout")
	}
	res, err := c.Synthesize(context.Background(), Request{Text: "fast"})
	if err != nil {
		t.Fatalf("Synthesize(fast) error = %v", err)
	}
	if string(res.Audio) != "ok" {
		t.Fatalf("audio = %q, want ok", res.Audio)
	}
}

func TestClientStreamEndWithoutChunks(t *testing.T) {
	srv := fakeServer(t, http.StatusInternalServerError, func(conn *websocket.Conn, req protocol.SynthesisRequest) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(protocol.StreamEnd))
	})
	c, err := NewClient(srv.URL, WithStreamPolicy(transport.Policy{Backoff: 20 * time.Millisecond}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	res, err := c.Synthesize(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(res.Audio) != 0 || res.Mode != ModeStream {
		t.Fatalf("result = %+v, want empty stream payload", res)
	}
}
