package batch

import (
	"sync"
)

// DefaultThreshold is the number of frames per dispatched batch.
const DefaultThreshold = 5

// Batch is a fixed-size group of consecutive frames from one connection.
type Batch struct {
	ConnectionID string
	Seq          int
	Frames       [][]byte
}

// Bytes concatenates the frames in arrival order.
func (b Batch) Bytes() []byte {
	n := 0
	for _, f := range b.Frames {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range b.Frames {
		out = append(out, f...)
	}
	return out
}

type pending struct {
	frames [][]byte
	seq    int
}

// Assembler groups incoming frames per connection and dispatches full batches.
// The pending batch is swapped out under the lock before dispatch, so a frame
// arriving during processing starts the next batch.
type Assembler struct {
	mu        sync.Mutex
	threshold int
	pending   map[string]*pending
	dispatch  func(Batch)
}

func NewAssembler(threshold int, dispatch func(Batch)) *Assembler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Assembler{
		threshold: threshold,
		pending:   make(map[string]*pending),
		dispatch:  dispatch,
	}
}

// Accept appends frame and reports whether it completed a batch.
func (a *Assembler) Accept(connectionID string, frame []byte) bool {
	a.mu.Lock()
	p, ok := a.pending[connectionID]
	if !ok {
		p = &pending{}
		a.pending[connectionID] = p
	}
	p.frames = append(p.frames, append([]byte(nil), frame...))
	if len(p.frames) < a.threshold {
		a.mu.Unlock()
		return false
	}
	b := Batch{ConnectionID: connectionID, Seq: p.seq, Frames: p.frames}
	p.frames = make([][]byte, 0, a.threshold)
	p.seq++
	dispatch := a.dispatch
	a.mu.Unlock()

	if dispatch != nil {
		dispatch(b)
	}
	return true
}

// Pending returns the number of frames buffered for a connection.
func (a *Assembler) Pending(connectionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pending[connectionID]; ok {
		return len(p.frames)
	}
	return 0
}

// Discard drops the partial batch of a disconnected connection and returns
// the number of orphaned frames.
func (a *Assembler) Discard(connectionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[connectionID]
	if !ok {
		return 0
	}
	delete(a.pending, connectionID)
	return len(p.frames)
}
