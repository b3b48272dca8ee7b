package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		binary bool
		data   string
		want   Kind
	}{
		{true, "END", KindBinary},
		{false, "END", KindEnd},
		{false, "ERROR: boom", KindError},
		{false, `{"type":"transcription"}`, KindJSON},
		{false, "{not json", KindText},
		{false, "hello", KindText},
	}
	for _, tc := range cases {
		if got := Classify(tc.binary, []byte(tc.data)); got.Kind != tc.want {
			t.Fatalf("Classify(%v, %q).Kind = %q, want %q", tc.binary, tc.data, got.Kind, tc.want)
		}
	}
	if msg := Classify(false, []byte("ERROR:  engine failed ")); msg.Text != "engine failed" {
		t.Fatalf("error text = %q, want %q", msg.Text, "engine failed")
	}
}

func echoServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var accepted atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted.Add(1)
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "drop" {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &accepted
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTransportSendAndSubscribe(t *testing.T) {
	srv, _ := echoServer(t)
	tr := New(wsURL(srv), Policy{Backoff: 20 * time.Millisecond})
	defer tr.Close()

	got := make(chan Message, 4)
	unsubscribe := tr.Subscribe(func(m Message) { got <- m })
	defer unsubscribe()

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if tr.State() != StateConnected {
		t.Fatalf("State() = %q, want connected", tr.State())
	}
	if err := tr.SendBinary(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Fatalf("SendBinary() error = %v", err)
	}
	if err := tr.SendText(context.Background(), "END"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	first := waitMessage(t, got)
	if first.Kind != KindBinary || len(first.Data) != 3 {
		t.Fatalf("first = %+v, want binary", first)
	}
	if second := waitMessage(t, got); second.Kind != KindEnd {
		t.Fatalf("second.Kind = %q, want end", second.Kind)
	}
}

func TestTransportUnsubscribe(t *testing.T) {
	srv, _ := echoServer(t)
	tr := New(wsURL(srv), Policy{Backoff: 20 * time.Millisecond})
	defer tr.Close()

	var mu sync.Mutex
	calls := 0
	unsubscribe := tr.Subscribe(func(Message) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	got := make(chan Message, 2)
	tr.Subscribe(func(m Message) { got <- m })
	unsubscribe()

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	_ = tr.SendText(context.Background(), "ping")
	waitMessage(t, got)
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("unsubscribed handler called %d times", calls)
	}
}

func TestTransportReconnectsAfterDrop(t *testing.T) {
	srv, accepted := echoServer(t)
	tr := New(wsURL(srv), Policy{Backoff: 20 * time.Millisecond})
	defer tr.Close()

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	_ = tr.SendText(context.Background(), "drop")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if accepted.Load() >= 2 && tr.State() == StateConnected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("accepted = %d state = %q, want reconnect", accepted.Load(), tr.State())
}

func TestTransportFailsAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	tr := New(url, Policy{Backoff: 10 * time.Millisecond, MaxRetries: 3})
	defer tr.Close()
	errs := make(chan Message, 1)
	tr.Subscribe(func(m Message) {
		if m.Kind == KindError {
			errs <- m
		}
	})

	if err := tr.Connect(context.Background()); err == nil {
		t.Fatalf("Connect() error = nil, want dial error")
	}
	msg := waitMessage(t, errs)
	if !errors.Is(msg.Err, ErrRetriesExhausted) {
		t.Fatalf("error message = %+v, want ErrRetriesExhausted", msg)
	}
	if tr.State() != StateFailed || !errors.Is(tr.Err(), ErrRetriesExhausted) {
		t.Fatalf("State()/Err() = %q/%v", tr.State(), tr.Err())
	}
	if err := tr.WaitConnected(context.Background()); !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("WaitConnected() error = %v", err)
	}
}

func TestTransportSendBeforeConnect(t *testing.T) {
	tr := New("ws://127.0.0.1:1/none", Policy{})
	if err := tr.SendText(context.Background(), "x"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendText() error = %v, want ErrNotConnected", err)
	}
	_ = tr.Close()
	if err := tr.SendText(context.Background(), "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("SendText() after Close error = %v, want ErrClosed", err)
	}
	if tr.State() != StateClosed {
		t.Fatalf("State() = %q, want closed", tr.State())
	}
}

func waitMessage(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
		return Message{}
	}
}

func TestTransportPublishesClosedOnLoss(t *testing.T) {
	srv, _ := echoServer(t)
	tr := New(wsURL(srv), Policy{Backoff: 20 * time.Millisecond})
	defer tr.Close()

	closed := make(chan Message, 4)
	tr.Subscribe(func(m Message) {
		if m.Kind == KindClosed {
			closed <- m
		}
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	_ = tr.SendText(context.Background(), "drop")

	msg := waitMessage(t, closed)
	if msg.Err == nil {
		t.Fatalf("closed message = %+v, want read error", msg)
	}
}

func TestTransportDropRedialsImmediately(t *testing.T) {
	srv, accepted := echoServer(t)
	tr := New(wsURL(srv), Policy{Backoff: time.Hour})
	defer tr.Close()

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	tr.Drop()
	if s := tr.State(); s == StateConnected {
		t.Fatalf("State() after Drop = %q, want not connected", s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected() error = %v", err)
	}
	for deadline := time.Now().Add(time.Second); accepted.Load() < 2; {
		if time.Now().After(deadline) {
			t.Fatalf("accepted = %d, want 2", accepted.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
