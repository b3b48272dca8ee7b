package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/avaass/internal/playback"
	"github.com/ent0n29/avaass/internal/synth"
)

var speakOpts struct {
	voice   string
	profile string
	outDir  string
	verbose bool
}

var speakCmd = &cobra.Command{
	Use:   "speak [text...]",
	Short: "Synthesize text and play it in order",
	Long: `Synthesize each argument (or each stdin line) and play it.

Requests go to POST /synthesize first and fall back to the /tts stream.
Repeated lines are spoken once. With --out-dir the audio is written to
numbered WAV files instead of being played with ffplay.

Example:
  avaassctl speak "hello there" "how are you"
  avaassctl speak --profile 2b1f... --out-dir ./out < lines.txt`,
	RunE: runSpeak,
}

func init() {
	f := speakCmd.Flags()
	f.StringVar(&speakOpts.voice, "voice", "", "tts model name")
	f.StringVar(&speakOpts.profile, "profile", "", "voice profile id for cloning")
	f.StringVarP(&speakOpts.outDir, "out-dir", "o", "", "write WAV files here instead of playing")
	f.BoolVarP(&speakOpts.verbose, "verbose", "v", false, "print request state transitions")
	rootCmd.AddCommand(speakCmd)
}

// voiceSynth applies the selected voice to every queued request.
type voiceSynth struct {
	inner   synth.Synthesizer
	voice   string
	profile string
}

func (v voiceSynth) Synthesize(ctx context.Context, req synth.Request) (synth.Result, error) {
	req.Voice = v.voice
	req.VoiceProfileID = v.profile
	return v.inner.Synthesize(ctx, req)
}

// finishTracker closes done once every expected request id has finished and
// no more requests will be added.
type finishTracker struct {
	mu       sync.Mutex
	want     int
	sealed   bool
	closed   bool
	finished map[string]struct{}
	done     chan struct{}
}

func newFinishTracker() *finishTracker {
	return &finishTracker{finished: make(map[string]struct{}), done: make(chan struct{})}
}

func (f *finishTracker) expect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.want++
}

// seal stops expecting requests and reports how many were expected.
func (f *finishTracker) seal() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sealed = true
	f.maybeCloseLocked()
	return f.want
}

func (f *finishTracker) finish(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.finished[id]; ok {
		return
	}
	f.finished[id] = struct{}{}
	f.maybeCloseLocked()
}

func (f *finishTracker) maybeCloseLocked() {
	if f.closed || !f.sealed || len(f.finished) < f.want {
		return
	}
	f.closed = true
	close(f.done)
}

type trackingPlayer struct {
	inner   playback.Player
	tracker *finishTracker
}

func (p trackingPlayer) Play(ctx context.Context, a playback.Audio) error {
	defer p.tracker.finish(a.Entry.RequestID)
	return p.inner.Play(ctx, a)
}

func speakLines(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var lines []string
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func runSpeak(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	lines, err := speakLines(args)
	if err != nil {
		return err
	}

	var opts []synth.ClientOption
	if speakOpts.verbose {
		opts = append(opts, synth.WithStateHook(func(id string, s synth.State) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", id, s)
		}))
	}
	client, err := synth.NewClient(serverURL, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	var player playback.Player = playback.NewFFplayPlayer()
	if speakOpts.outDir != "" {
		if err := os.MkdirAll(speakOpts.outDir, 0o755); err != nil {
			return err
		}
		player = &playback.DirPlayer{Dir: speakOpts.outDir}
	}

	tracker := newFinishTracker()
	q := playback.NewQueue(voiceSynth{inner: client, voice: speakOpts.voice, profile: speakOpts.profile}, trackingPlayer{inner: player, tracker: tracker})
	defer q.Dispose()
	q.OnAudioReady(func(a playback.Audio) {
		fmt.Fprintf(cmd.OutOrStdout(), "speaking (%s): %s\n", a.Duration.Round(10*time.Millisecond), a.Entry.Text)
	})
	q.OnError(func(e playback.Entry, err error) {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed %q: %v\n", e.Text, err)
		tracker.finish(e.RequestID)
	})
	if err := q.Start(ctx); err != nil {
		return err
	}

	for _, line := range lines {
		if _, ok := q.Enqueue(line); ok {
			tracker.expect()
		}
	}
	if tracker.seal() == 0 {
		return nil
	}

	select {
	case <-tracker.done:
	case <-ctx.Done():
	}
	return nil
}
