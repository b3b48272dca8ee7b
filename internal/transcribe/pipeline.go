package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ent0n29/avaass/internal/audio"
	"github.com/ent0n29/avaass/internal/batch"
)

// Pipeline stages reported in StageError.
const (
	StageWrite     = "write"
	StageConvert   = "convert"
	StageRecognize = "recognize"
)

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the failed stage of err, or "" when err is not a StageError.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// WAVConverter converts a container file to mono PCM16 WAV.
type WAVConverter interface {
	ToWAV(ctx context.Context, in, out string, sampleRate int) error
}

// StageObserver receives per-stage timings.
type StageObserver func(stage string, d time.Duration)

// Pipeline runs one batch through temp file, conversion and recognition.
type Pipeline struct {
	TempDir    string
	Converter  WAVConverter
	Recognizer Recognizer
	Options    Options
	// Timeout bounds each subprocess.
	Timeout time.Duration
	Observe StageObserver

	sem *semaphore.Weighted
}

func NewPipeline(tempDir string, conv WAVConverter, rec Recognizer, opts Options, timeout time.Duration, maxConcurrent int) *Pipeline {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Pipeline{
		TempDir:    tempDir,
		Converter:  conv,
		Recognizer: rec,
		Options:    opts,
		Timeout:    timeout,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Process transcribes one batch. Temp files are removed on every path.
func (p *Pipeline) Process(ctx context.Context, b batch.Batch) (Result, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return Result{}, err
		}
		defer p.sem.Release(1)
	}
	start := time.Now()

	base := fmt.Sprintf("asr_%s_%d_%s", b.ConnectionID, time.Now().UnixNano(), uuid.NewString())
	inPath := filepath.Join(p.TempDir, base+".webm")
	wavPath := filepath.Join(p.TempDir, base+".wav")
	defer os.Remove(inPath)
	defer os.Remove(wavPath)

	if err := os.WriteFile(inPath, b.Bytes(), 0o600); err != nil {
		return Result{}, &StageError{Stage: StageWrite, Err: err}
	}

	stageStart := time.Now()
	convCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	err := p.Converter.ToWAV(convCtx, inPath, wavPath, audio.RecognitionSampleRate)
	cancel()
	if err != nil {
		return Result{}, &StageError{Stage: StageConvert, Err: err}
	}
	p.observe(StageConvert, time.Since(stageStart))

	stageStart = time.Now()
	recCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	res, err := p.Recognizer.Recognize(recCtx, wavPath, p.Options)
	cancel()
	if err != nil {
		return Result{}, &StageError{Stage: StageRecognize, Err: err}
	}
	p.observe(StageRecognize, time.Since(stageStart))

	res.ProcessingTimeMS = time.Since(start).Milliseconds()
	return res, nil
}

func (p *Pipeline) observe(stage string, d time.Duration) {
	if p.Observe != nil {
		p.Observe(stage, d)
	}
}
