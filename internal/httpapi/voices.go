package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/ent0n29/avaass/internal/profiles"
	"github.com/ent0n29/avaass/internal/synth"
)

type voiceSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var voiceCatalog = []voiceSummary{
	{ID: synth.DefaultModel, Name: "LJ Speech (English)"},
	{ID: "tts_models/en/vctk/vits", Name: "VCTK (Multi-speaker English)"},
	{ID: "tts_models/en/jenny/jenny", Name: "Jenny (American English)"},
	{ID: "tts_models/en/multi-dataset/tortoise-v2", Name: "Tortoise (High quality)"},
	{ID: "xtts_v2", Name: "XTTS v2 (Voice cloning)"},
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"voices": voiceCatalog})
}

func (s *Server) handleCreateVoiceProfile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Profiles == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice profiles not configured")
		return
	}
	maxBytes := s.cfg.ProfileMaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	// Multipart framing adds a little on top of the file itself.
	limit := maxBytes + (64 << 10)
	if r.ContentLength > limit {
		respondError(w, http.StatusRequestEntityTooLarge, "too_large", "Reference audio exceeds the size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "too_large", "Reference audio exceeds the size limit")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "No audio file provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("reference_audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "No audio file provided")
		return
	}
	defer file.Close()

	p, err := s.deps.Profiles.Create(r.Context(), file, header.Filename)
	switch {
	case errors.Is(err, profiles.ErrTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "too_large", "Reference audio exceeds the size limit")
		return
	case errors.Is(err, profiles.ErrEmpty):
		respondError(w, http.StatusBadRequest, "invalid_request", "No audio file provided")
		return
	case err != nil:
		log.Printf("voice profile creation failed for %q: %v", header.Filename, err)
		respondError(w, http.StatusInternalServerError, "profile_failed", "Failed to process voice sample")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"message":    "Voice profile created",
		"profile_id": p.ID,
	})
}

func (s *Server) handleListVoiceProfiles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Profiles == nil {
		respondJSON(w, http.StatusOK, map[string]any{"profiles": []profiles.Profile{}})
		return
	}
	list, err := s.deps.Profiles.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if list == nil {
		list = []profiles.Profile{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"profiles": list})
}
