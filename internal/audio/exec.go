package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Output holds the captured streams of a finished subprocess.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes an external binary with an argument vector. No shell is involved.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// CommandError describes a failed subprocess.
type CommandError struct {
	Name     string
	Detail   string
	TimedOut bool
	Err      error
}

func (e *CommandError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out", e.Name)
	}
	return fmt.Sprintf("%s failed: %s", e.Name, e.Detail)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs binaries with os/exec, keeping the tail of stderr.
type ExecRunner struct {
	MaxStderr int
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	stderr := newTailBuffer(r.MaxStderr)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return out, nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return out, context.Canceled
	}
	detail := strings.TrimSpace(string(out.Stderr))
	if detail == "" {
		detail = err.Error()
	}
	return out, &CommandError{
		Name:     name,
		Detail:   detail,
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
		Err:      err,
	}
}

type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 16 << 10
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.buf...)
}
