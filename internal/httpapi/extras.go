package httpapi

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/avaass/internal/history"
	"github.com/ent0n29/avaass/internal/predict"
)

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &body); err != nil || strings.TrimSpace(body.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "Text input is required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"predictions": predict.Suggest(body.Text)})
}

func (s *Server) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}
	if s.deps.History == nil {
		respondJSON(w, http.StatusOK, map[string]any{"transcripts": []history.Record{}})
		return
	}
	records, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"transcripts": records})
}

// handlePublic serves published synthesis outputs and nothing else.
func (s *Server) handlePublic(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name != filepath.Base(name) || !strings.HasPrefix(name, "output_") || !strings.HasSuffix(name, ".wav") {
		respondError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, filepath.Join(s.cfg.PublicDir, name))
}
