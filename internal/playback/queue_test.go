package playback

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/avaass/internal/audio"
	"github.com/ent0n29/avaass/internal/synth"
)

type fakeSynth struct {
	mu       sync.Mutex
	texts    []string
	inFlight int
	maxSeen  int
	delay    time.Duration
	fail     map[string]error
}

func (f *fakeSynth) Synthesize(ctx context.Context, req synth.Request) (synth.Result, error) {
	f.mu.Lock()
	f.texts = append(f.texts, req.Text)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	err := f.fail[req.Text]
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return synth.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return synth.Result{}, err
	}
	wav, _ := audio.EncodeWAVPCM16LE(make([]byte, 3200), 16000)
	return synth.Result{RequestID: req.RequestID, Audio: wav}, nil
}

func (f *fakeSynth) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type recordingPlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *recordingPlayer) Play(_ context.Context, a Audio) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, a.Entry.Text)
	return nil
}

func (p *recordingPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func TestQueueDeduplicatesTrimmedText(t *testing.T) {
	s := &fakeSynth{}
	q := NewQueue(s, nil)
	if _, ok := q.Enqueue("hello"); !ok {
		t.Fatalf("Enqueue(hello) ok = false")
	}
	if _, ok := q.Enqueue("  hello "); ok {
		t.Fatalf("Enqueue(duplicate) ok = true, want false")
	}
	if _, ok := q.Enqueue("   "); ok {
		t.Fatalf("Enqueue(blank) ok = true, want false")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestQueueSpeaksInOrderOneAtATime(t *testing.T) {
	s := &fakeSynth{delay: 5 * time.Millisecond}
	p := &recordingPlayer{}
	q := NewQueue(s, p)
	ready := make(chan Audio, 8)
	q.OnAudioReady(func(a Audio) { ready <- a })

	for _, text := range []string{"one", "two", "three"} {
		q.Enqueue(text)
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer q.Dispose()

	for i := 0; i < 3; i++ {
		select {
		case a := <-ready:
			if a.Duration != 100*time.Millisecond {
				t.Fatalf("Duration = %s, want 100ms", a.Duration)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("audio %d not ready", i)
		}
	}
	got := s.requested()
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Fatalf("requested = %v", got)
	}
	if s.maxSeen != 1 {
		t.Fatalf("max in flight = %d, want 1", s.maxSeen)
	}
	deadline := time.Now().Add(time.Second)
	for p.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.count() != 3 {
		t.Fatalf("played = %d, want 3", p.count())
	}
}

func TestQueueErrorDoesNotStall(t *testing.T) {
	s := &fakeSynth{fail: map[string]error{"bad": errors.New("engine down")}}
	q := NewQueue(s, nil)
	errs := make(chan Entry, 1)
	ready := make(chan Audio, 1)
	q.OnError(func(e Entry, _ error) { errs <- e })
	q.OnAudioReady(func(a Audio) { ready <- a })
	q.Enqueue("bad")
	q.Enqueue("good")
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer q.Dispose()

	select {
	case e := <-errs:
		if e.Text != "bad" {
			t.Fatalf("error entry = %q, want bad", e.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no error reported")
	}
	select {
	case a := <-ready:
		if a.Entry.Text != "good" {
			t.Fatalf("ready entry = %q, want good", a.Entry.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("queue stalled after error")
	}
}

func TestQueueForgetAllowsRepeat(t *testing.T) {
	q := NewQueue(&fakeSynth{}, nil)
	q.Enqueue("again")
	if _, ok := q.Enqueue("again"); ok {
		t.Fatalf("duplicate accepted before Forget")
	}
	q.Forget()
	if _, ok := q.Enqueue("again"); ok {
		t.Fatalf("pending text accepted twice after Forget")
	}
}

func TestQueueLifecycle(t *testing.T) {
	q := NewQueue(&fakeSynth{}, nil)
	if q.State() != LifecycleInit {
		t.Fatalf("State() = %q, want init", q.State())
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := q.Start(context.Background()); !errors.Is(err, ErrNotInit) {
		t.Fatalf("second Start() error = %v, want ErrNotInit", err)
	}
	q.Dispose()
	if q.State() != LifecycleDisposed {
		t.Fatalf("State() = %q, want disposed", q.State())
	}
	if _, ok := q.Enqueue("late"); ok {
		t.Fatalf("Enqueue after Dispose ok = true")
	}
	if err := q.Start(context.Background()); !errors.Is(err, ErrDisposed) {
		t.Fatalf("Start() after Dispose error = %v, want ErrDisposed", err)
	}
}

func TestDecodeRejectsNonWAV(t *testing.T) {
	for _, buf := range [][]byte{[]byte("mp3 bytes"), nil} {
		if _, err := Decode(buf); err == nil {
			t.Fatalf("Decode(%q) error = nil, want error", buf)
		}
	}
}

func TestDirPlayerWritesNumberedFiles(t *testing.T) {
	dir := t.TempDir()
	p := &DirPlayer{Dir: dir}
	wav, _ := audio.EncodeWAVPCM16LE(make([]byte, 4), 16000)
	a, err := Decode(wav)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	a.Entry = Entry{Text: "x", RequestID: "r1"}
	if err := p.Play(context.Background(), a); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if _, err := os.Stat(dir + "/0001_r1.wav"); err != nil {
		t.Fatalf("expected file: %v", err)
	}
}
