package httpapi

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

type readyCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type readyResponse struct {
	Status string       `json:"status"`
	Checks []readyCheck `json:"checks"`
}

// handleReady reports which external engines and stores are usable. Any
// error-level check turns the response into a 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make([]readyCheck, 0, 12)
	checks = append(checks, binaryCheck("ffmpeg", "Audio converter", s.cfg.FFmpegPath, "error", "Install ffmpeg or set FFMPEG_PATH."))

	if strings.EqualFold(s.cfg.ASRBackend, "openai") {
		status, detail := "ok", "api key present"
		if strings.TrimSpace(s.cfg.OpenAIAPIKey) == "" {
			status, detail = "error", "OPENAI_API_KEY is not set"
		}
		checks = append(checks, readyCheck{ID: "asr", Status: status, Label: "Speech recognition (openai)", Detail: detail})
	} else {
		checks = append(checks, binaryCheck("whisper", "Speech recognition", s.cfg.WhisperCLI, "error", "Install whisper or set WHISPER_CLI."))
	}

	if strings.TrimSpace(s.cfg.TTSRemoteURL) != "" {
		checks = append(checks, readyCheck{ID: "tts_remote", Status: "ok", Label: "Remote synthesis", Detail: s.cfg.TTSRemoteURL})
	}
	checks = append(checks,
		binaryCheck("tts", "Speech synthesis", s.cfg.TTSCLI, "error", "Install Coqui TTS or set TTS_CLI."),
		binaryCheck("xtts", "Voice cloning", s.cfg.XTTSCLI, "warn", "Install xtts or set XTTS_CLI; cloned requests fall back to the default model."),
	)

	for _, dir := range s.cfg.Dirs() {
		checks = append(checks, dirCheck(dir))
	}

	names := make([]string, 0, len(s.deps.Probes))
	for name := range s.deps.Probes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		err := s.deps.Probes[name](ctx)
		cancel()
		c := readyCheck{ID: name, Status: "ok", Label: name}
		if err != nil {
			c.Status = "error"
			c.Detail = err.Error()
		}
		checks = append(checks, c)
	}

	status, code := "ready", http.StatusOK
	for _, c := range checks {
		if c.Status == "error" {
			status, code = "not_ready", http.StatusServiceUnavailable
			break
		}
	}
	respondJSON(w, code, readyResponse{Status: status, Checks: checks})
}

func binaryCheck(id, label, cli, missing, fix string) readyCheck {
	cli = strings.TrimSpace(cli)
	if cli == "" {
		return readyCheck{ID: id, Status: missing, Label: label, Detail: "not configured", Fix: fix}
	}
	path, err := exec.LookPath(cli)
	if err != nil {
		return readyCheck{ID: id, Status: missing, Label: label, Detail: cli + " not found", Fix: fix}
	}
	return readyCheck{ID: id, Status: "ok", Label: label, Detail: path}
}

func dirCheck(dir string) readyCheck {
	c := readyCheck{ID: "dir:" + dir, Label: "Working directory", Detail: dir}
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		c.Status = "error"
		c.Fix = "The directory is created at startup; check permissions."
	case !info.IsDir():
		c.Status = "error"
		c.Fix = "Path exists but is not a directory."
	default:
		c.Status = "ok"
	}
	return c
}
