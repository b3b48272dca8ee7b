package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// Microphone captures a device through ffmpeg as an MP3 stream. MP3 frames
// resynchronize, so any slice of the stream decodes on its own.
type Microphone struct {
	FFmpeg string
	// InputFormat is the ffmpeg demuxer; empty picks one for the OS.
	InputFormat string
	Device      string
	SampleRate  int
}

// Args returns the ffmpeg argument vector.
func (m Microphone) Args() []string {
	format := m.InputFormat
	if format == "" {
		format = defaultInputFormat()
	}
	device := m.Device
	if device == "" {
		device = defaultDevice(format)
	}
	rate := m.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format,
		"-i", device,
		"-ac", "1",
		"-ar", fmt.Sprint(rate),
		"-c:a", "libmp3lame",
		"-b:a", "64k",
		"-f", "mp3",
		"pipe:1",
	}
}

// Start launches the capture process. Closing the returned reader stops it.
func (m Microphone) Start(ctx context.Context) (io.ReadCloser, error) {
	bin := m.FFmpeg
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, m.Args()...)
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 2 * time.Second
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start microphone capture: %w", err)
	}
	return &procReader{ReadCloser: out, cmd: cmd}, nil
}

type procReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *procReader) Close() error {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(os.Interrupt)
	}
	_ = p.ReadCloser.Close()
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()
	select {
	case <-time.After(1200 * time.Millisecond):
		_ = p.cmd.Process.Kill()
		<-done
	case <-done:
	}
	return nil
}

func defaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

func defaultDevice(format string) string {
	switch format {
	case "avfoundation":
		return ":0"
	case "dshow":
		return "audio=default"
	default:
		return "default"
	}
}
