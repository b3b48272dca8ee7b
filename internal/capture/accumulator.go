package capture

import (
	"context"
	"errors"
	"io"
	"time"
)

// DefaultChunkBytes approximates one second of compressed microphone audio.
const DefaultChunkBytes = 16 << 10

// SendFunc forwards one frame.
type SendFunc func(ctx context.Context, frame []byte) error

// Accumulator slices an audio stream into fixed-size frames.
type Accumulator struct {
	ChunkBytes int
	// Interval paces frames; zero sends as fast as the source delivers.
	Interval time.Duration
}

// Run reads r until EOF or ctx is done and sends every frame. The final short
// frame is sent too. It returns the number of frames sent.
func (a Accumulator) Run(ctx context.Context, r io.Reader, send SendFunc) (int, error) {
	size := a.ChunkBytes
	if size <= 0 {
		size = DefaultChunkBytes
	}
	var tick <-chan time.Time
	if a.Interval > 0 {
		ticker := time.NewTicker(a.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if tick != nil && sent > 0 {
				select {
				case <-tick:
				case <-ctx.Done():
					return sent, ctx.Err()
				}
			}
			if serr := send(ctx, buf[:n]); serr != nil {
				return sent, serr
			}
			sent++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}
	}
}
