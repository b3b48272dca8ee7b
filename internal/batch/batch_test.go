package batch

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAssemblerDispatchesEveryThresholdFrames(t *testing.T) {
	var got []Batch
	a := NewAssembler(5, func(b Batch) { got = append(got, b) })

	for i := 0; i < 12; i++ {
		a.Accept("c1", []byte{byte(i)})
	}
	if len(got) != 2 {
		t.Fatalf("dispatched = %d, want 2", len(got))
	}
	if got[0].Seq != 0 || got[1].Seq != 1 {
		t.Fatalf("seqs = %d,%d want 0,1", got[0].Seq, got[1].Seq)
	}
	if string(got[1].Bytes()) != string([]byte{5, 6, 7, 8, 9}) {
		t.Fatalf("second batch bytes = %v", got[1].Bytes())
	}
	if a.Pending("c1") != 2 {
		t.Fatalf("Pending() = %d, want 2", a.Pending("c1"))
	}
	if n := a.Discard("c1"); n != 2 {
		t.Fatalf("Discard() = %d, want 2 orphaned frames", n)
	}
}

func TestAssemblerKeepsConnectionsSeparate(t *testing.T) {
	var got []Batch
	a := NewAssembler(2, func(b Batch) { got = append(got, b) })
	a.Accept("a", []byte("a1"))
	a.Accept("b", []byte("b1"))
	a.Accept("a", []byte("a2"))
	if len(got) != 1 || got[0].ConnectionID != "a" || string(got[0].Bytes()) != "a1a2" {
		t.Fatalf("got = %+v, want one batch for a", got)
	}
	if a.Pending("b") != 1 {
		t.Fatalf("Pending(b) = %d, want 1", a.Pending("b"))
	}
}

func TestAssemblerCopiesFrames(t *testing.T) {
	var got Batch
	a := NewAssembler(1, func(b Batch) { got = b })
	frame := []byte("abc")
	a.Accept("c", frame)
	frame[0] = 'z'
	if string(got.Bytes()) != "abc" {
		t.Fatalf("batch aliased caller buffer: %q", got.Bytes())
	}
}

func TestAssemblerFrameDuringDispatchStartsNextBatch(t *testing.T) {
	var a *Assembler
	var got []Batch
	a = NewAssembler(2, func(b Batch) {
		got = append(got, b)
		if b.Seq == 0 {
			a.Accept("c", []byte("late"))
		}
	})
	a.Accept("c", []byte("x"))
	a.Accept("c", []byte("y"))
	if len(got) != 1 || len(got[0].Frames) != 2 {
		t.Fatalf("first batch = %+v, want exactly 2 frames", got)
	}
	if a.Pending("c") != 1 {
		t.Fatalf("Pending() = %d, want the late frame", a.Pending("c"))
	}
}

func TestQueueRunsInOrderOneAtATime(t *testing.T) {
	q := NewQueue(8, nil)
	var (
		mu       sync.Mutex
		order    []int
		inFlight int
		maxSeen  int
	)
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		q.Run(ctx, func(_ context.Context, b Batch) {
			mu.Lock()
			inFlight++
			if inFlight > maxSeen {
				maxSeen = inFlight
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inFlight--
			order = append(order, b.Seq)
			n := len(order)
			mu.Unlock()
			if n == 4 {
				close(done)
			}
		})
	}()

	for i := 0; i < 4; i++ {
		q.Push(Batch{Seq: i})
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("queue did not drain")
	}
	mu.Lock()
	defer mu.Unlock()
	if maxSeen != 1 {
		t.Fatalf("max in flight = %d, want 1", maxSeen)
	}
	for i, seq := range order {
		if seq != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	var dropped []int
	q := NewQueue(2, func(b Batch) { dropped = append(dropped, b.Seq) })
	q.Push(Batch{Seq: 0})
	q.Push(Batch{Seq: 1})
	q.Push(Batch{Seq: 2})
	if len(dropped) != 1 || dropped[0] != 0 {
		t.Fatalf("dropped = %v, want [0]", dropped)
	}
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
}

func TestQueueCloseStopsRun(t *testing.T) {
	q := NewQueue(2, nil)
	q.Push(Batch{Seq: 0})
	if n := q.Close(); n != 1 {
		t.Fatalf("Close() = %d, want 1 discarded", n)
	}
	if q.Push(Batch{Seq: 1}) {
		t.Fatalf("Push() after Close = true, want false")
	}
	finished := make(chan struct{})
	go func() {
		q.Run(context.Background(), func(context.Context, Batch) { t.Errorf("handled batch after close") })
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after Close")
	}
}
