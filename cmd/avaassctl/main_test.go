package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ent0n29/avaass/internal/playback"
	"github.com/ent0n29/avaass/internal/synth"
)

func TestWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:5000":      "ws://localhost:5000/ws/speech",
		"https://speech.example/":    "wss://speech.example/ws/speech",
		"https://speech.example/api": "wss://speech.example/api/ws/speech",
	}
	for in, want := range cases {
		got, err := wsURL(in, "/ws/speech")
		if err != nil {
			t.Fatalf("wsURL(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("wsURL(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := wsURL("ftp://x", "/ws/speech"); err == nil {
		t.Fatalf("wsURL(ftp) error = nil, want error")
	}
}

type recordingSynth struct{ got synth.Request }

func (r *recordingSynth) Synthesize(_ context.Context, req synth.Request) (synth.Result, error) {
	r.got = req
	return synth.Result{}, nil
}

func TestVoiceSynthAppliesSelection(t *testing.T) {
	inner := &recordingSynth{}
	v := voiceSynth{inner: inner, voice: "tts_models/en/vctk/vits", profile: "p1"}
	_, _ = v.Synthesize(context.Background(), synth.Request{Text: "hi"})
	if inner.got.Voice != "tts_models/en/vctk/vits" || inner.got.VoiceProfileID != "p1" {
		t.Fatalf("request = %+v", inner.got)
	}
}

func TestFinishTrackerClosesOnce(t *testing.T) {
	tr := newFinishTracker()
	tr.expect()
	tr.expect()
	tr.seal()
	p := trackingPlayer{inner: &playback.DirPlayer{Dir: t.TempDir()}, tracker: tr}
	_ = p.Play(context.Background(), playback.Audio{Entry: playback.Entry{RequestID: "a"}})
	tr.finish("a")
	select {
	case <-tr.done:
		t.Fatalf("done closed after one request")
	default:
	}
	tr.finish("b")
	<-tr.done
}

func TestFinishTrackerWaitsUntilSealed(t *testing.T) {
	tr := newFinishTracker()
	tr.expect()
	tr.finish("a")
	tr.expect()
	select {
	case <-tr.done:
		t.Fatalf("done closed before all requests were added")
	default:
	}
	tr.finish("b")
	select {
	case <-tr.done:
		t.Fatalf("done closed before seal")
	default:
	}
	if got := tr.seal(); got != 2 {
		t.Fatalf("seal() = %d, want 2", got)
	}
	<-tr.done
	tr.finish("c")
	tr.seal()
}

func TestFinishTrackerConcurrentFinish(t *testing.T) {
	tr := newFinishTracker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		tr.expect()
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			tr.finish(id)
		}(fmt.Sprint(i))
	}
	tr.seal()
	wg.Wait()
	<-tr.done
}

func TestVoicesCommand(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/voices":
			_ = json.NewEncoder(w).Encode(map[string]any{"voices": []map[string]string{{"id": "xtts_v2", "name": "XTTS v2 (Voice cloning)"}}})
		case "/api/voice-profiles":
			_ = json.NewEncoder(w).Encode(map[string]any{"profiles": []any{}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"voices", "--server", ts.URL})
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("voices error = %v", err)
	}
	if !strings.Contains(out.String(), "xtts_v2") {
		t.Fatalf("output = %q, want xtts_v2 listed", out.String())
	}
}
