package playback

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ent0n29/avaass/internal/synth"
)

// Lifecycle of a Queue.
type Lifecycle string

const (
	LifecycleInit     Lifecycle = "init"
	LifecycleActive   Lifecycle = "active"
	LifecycleDisposed Lifecycle = "disposed"
)

var (
	ErrNotInit  = errors.New("playback queue already started")
	ErrDisposed = errors.New("playback queue disposed")
)

type Entry struct {
	Text      string
	RequestID string
}

// Queue speaks texts one at a time. A trimmed text is requested at most once
// per queue lifetime (or until Forget).
type Queue struct {
	synth  synth.Synthesizer
	player Player

	mu      sync.Mutex
	state   Lifecycle
	pending []Entry
	seen    map[string]struct{}
	notify  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	nextSub int
	onAudio map[int]func(Audio)
	onError map[int]func(Entry, error)
}

// NewQueue builds a queue. player may be nil when only OnAudioReady is used.
func NewQueue(s synth.Synthesizer, player Player) *Queue {
	return &Queue{
		synth:   s,
		player:  player,
		state:   LifecycleInit,
		seen:    make(map[string]struct{}),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		onAudio: make(map[int]func(Audio)),
		onError: make(map[int]func(Entry, error)),
	}
}

// Start moves the queue to active and begins processing.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch q.state {
	case LifecycleDisposed:
		return ErrDisposed
	case LifecycleActive:
		return ErrNotInit
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.state = LifecycleActive
	go q.run(ctx)
	return nil
}

func (q *Queue) State() Lifecycle {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Enqueue adds text unless it is empty, already seen, or the queue is disposed.
func (q *Queue) Enqueue(text string) (Entry, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Entry{}, false
	}
	q.mu.Lock()
	if q.state == LifecycleDisposed {
		q.mu.Unlock()
		return Entry{}, false
	}
	if _, ok := q.seen[text]; ok {
		q.mu.Unlock()
		return Entry{}, false
	}
	q.seen[text] = struct{}{}
	e := Entry{Text: text, RequestID: uuid.NewString()}
	q.pending = append(q.pending, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return e, true
}

// Len returns the number of entries waiting to be requested.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Forget clears the dedup set so texts may be spoken again.
func (q *Queue) Forget() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seen = make(map[string]struct{})
	for _, e := range q.pending {
		q.seen[e.Text] = struct{}{}
	}
}

func (q *Queue) OnAudioReady(fn func(Audio)) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextSub
	q.nextSub++
	q.onAudio[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.onAudio, id)
	}
}

func (q *Queue) OnError(fn func(Entry, error)) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextSub
	q.nextSub++
	q.onError[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.onError, id)
	}
}

// Dispose stops processing, drops pending entries and waits for the worker.
func (q *Queue) Dispose() {
	q.mu.Lock()
	prev := q.state
	q.state = LifecycleDisposed
	q.pending = nil
	cancel := q.cancel
	q.mu.Unlock()

	if prev != LifecycleActive {
		return
	}
	cancel()
	<-q.done
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	for {
		e, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}
		q.speak(ctx, e)
		if ctx.Err() != nil {
			return
		}
	}
}

func (q *Queue) pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Entry{}, false
	}
	e := q.pending[0]
	q.pending = q.pending[1:]
	return e, true
}

func (q *Queue) speak(ctx context.Context, e Entry) {
	res, err := q.synth.Synthesize(ctx, synth.Request{Text: e.Text, RequestID: e.RequestID})
	if err != nil {
		q.emitError(e, err)
		return
	}
	a, err := Decode(res.Audio)
	if err != nil {
		q.emitError(e, err)
		return
	}
	a.Entry = e
	q.emitAudio(a)
	if q.player == nil {
		return
	}
	if err := q.player.Play(ctx, a); err != nil && ctx.Err() == nil {
		q.emitError(e, err)
	}
}

func (q *Queue) emitAudio(a Audio) {
	q.mu.Lock()
	fns := make([]func(Audio), 0, len(q.onAudio))
	for _, fn := range q.onAudio {
		fns = append(fns, fn)
	}
	q.mu.Unlock()
	for _, fn := range fns {
		fn(a)
	}
}

func (q *Queue) emitError(e Entry, err error) {
	q.mu.Lock()
	fns := make([]func(Entry, error), 0, len(q.onError))
	for _, fn := range q.onError {
		fns = append(fns, fn)
	}
	q.mu.Unlock()
	if len(fns) == 0 {
		log.Printf("playback of %q failed: %v", e.Text, err)
	}
	for _, fn := range fns {
		fn(e, err)
	}
}
