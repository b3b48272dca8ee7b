package audio

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const (
	// RecognitionSampleRate is what the recognizer expects.
	RecognitionSampleRate = 16000
	// ProfileSampleRate is used for voice cloning reference samples.
	ProfileSampleRate = 22050
)

// Converter normalizes arbitrary container audio to mono PCM16 WAV with ffmpeg.
type Converter struct {
	FFmpeg  string
	Runner  Runner
	Timeout time.Duration
}

func NewConverter(ffmpeg string, timeout time.Duration) *Converter {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &Converter{FFmpeg: ffmpeg, Runner: ExecRunner{}, Timeout: timeout}
}

// Args returns the ffmpeg argument vector for a conversion.
func (c *Converter) Args(in, out string, sampleRate int) []string {
	return []string{
		"-y",
		"-i", in,
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		out,
	}
}

// ToWAV converts in to a mono PCM16 WAV at sampleRate written to out.
func (c *Converter) ToWAV(ctx context.Context, in, out string, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = RecognitionSampleRate
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if _, err := c.Runner.Run(ctx, c.FFmpeg, c.Args(in, out, sampleRate)...); err != nil {
		return fmt.Errorf("ffmpeg conversion: %w", err)
	}
	return nil
}
