package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/avaass/internal/capture"
	"github.com/ent0n29/avaass/internal/protocol"
	"github.com/ent0n29/avaass/internal/transcribe"
)

var transcribeOpts struct {
	file      string
	mic       bool
	device    string
	ffmpeg    string
	chunkSize int
	interval  time.Duration
	linger    time.Duration
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Stream audio to the transcription socket and print results",
	Long: `Stream audio to /ws/speech and print every transcription.

The server transcribes every five frames, so a file is sent in
--chunk-size slices. Use --mic to capture from the default input device
through ffmpeg; stop with Ctrl-C.

Example:
  avaassctl transcribe --file speech.webm
  avaassctl transcribe --mic --interval 1s`,
	RunE: runTranscribe,
}

func init() {
	f := transcribeCmd.Flags()
	f.StringVarP(&transcribeOpts.file, "file", "f", "", "audio file to stream (- for stdin)")
	f.BoolVar(&transcribeOpts.mic, "mic", false, "capture from the microphone with ffmpeg")
	f.StringVar(&transcribeOpts.device, "device", "", "ffmpeg capture device (default depends on OS)")
	f.StringVar(&transcribeOpts.ffmpeg, "ffmpeg", "ffmpeg", "ffmpeg binary for --mic")
	f.IntVar(&transcribeOpts.chunkSize, "chunk-size", capture.DefaultChunkBytes, "bytes per frame")
	f.DurationVar(&transcribeOpts.interval, "interval", 0, "pace frames at this interval (0 = as fast as read)")
	f.DurationVar(&transcribeOpts.linger, "linger", 10*time.Second, "time to wait for results after the input ends")
	rootCmd.AddCommand(transcribeCmd)
}

func openSource(ctx context.Context) (io.ReadCloser, error) {
	switch {
	case transcribeOpts.mic:
		return capture.Microphone{FFmpeg: transcribeOpts.ffmpeg, Device: transcribeOpts.device}.Start(ctx)
	case transcribeOpts.file == "-":
		return io.NopCloser(os.Stdin), nil
	case transcribeOpts.file != "":
		return os.Open(transcribeOpts.file)
	default:
		return nil, errors.New("one of --file or --mic is required")
	}
}

func runTranscribe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	target, err := wsURL(serverURL, "/ws/speech")
	if err != nil {
		return err
	}

	client := transcribe.NewClient(target, transcribe.ClientPolicy)
	defer client.Close()
	out := cmd.OutOrStdout()
	client.OnTranscription(func(t protocol.Transcription) {
		fmt.Fprintf(out, "[%s %.2f %dms] %s\n", t.Language, t.Confidence, t.ProcessingTimeMS, t.Text)
	})
	client.OnError(func(err error) {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
	})
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}

	src, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	acc := capture.Accumulator{ChunkBytes: transcribeOpts.chunkSize, Interval: transcribeOpts.interval}
	sent, err := acc.Run(ctx, src, client.SendAudio)
	fmt.Fprintf(cmd.ErrOrStderr(), "sent %d frame(s)\n", sent)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	select {
	case <-ctx.Done():
	case <-time.After(transcribeOpts.linger):
	}
	return nil
}
