package studio

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"scriptcast/internal/audio"
	"scriptcast/internal/generate"
	"scriptcast/internal/script"
)

// Handler exposes studio HTTP endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts all studio endpoints on a fresh chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/scripts", func(r chi.Router) {
		r.Post("/", h.GenerateScript)
		r.Get("/", h.ListScripts)

		r.Route("/{script_id}", func(r chi.Router) {
			r.Get("/", h.GetScript)
			r.Delete("/", h.DeleteScript)

			r.Route("/segments/{index}", func(r chi.Router) {
				r.Put("/", h.UpdateSegment)
				r.Post("/toggle", h.TogglePlayback)
				r.Post("/stop", h.StopPlayback)
				r.Put("/ambience", h.SetAmbience)
				r.Get("/playback", h.PlaybackStatus)
				r.Post("/image", h.GenerateImage)
			})
		})
	})

	r.Post("/voice/analysis", h.AnalyzeVoice)

	return r
}

// GenerateScript handles POST /scripts.
// Body: { "topic": "...", "tone": "calm", "duration_seconds": 45, "use_search": true }.
func (h *Handler) GenerateScript(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Topic           string      `json:"topic"`
		Tone            script.Tone `json:"tone"`
		DurationSeconds int         `json:"duration_seconds"`
		UseSearch       bool        `json:"use_search"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid generate body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sc, err := h.svc.Generate(r.Context(), body.Topic, body.Tone, body.DurationSeconds, body.UseSearch)
	if err != nil {
		h.writeError(w, "generate script", err)
		return
	}

	h.log.Info("script generated",
		slog.String("script_id", sc.ID),
		slog.String("tone", string(sc.Tone)),
		slog.Int("segments", len(sc.Segments)))
	h.writeJSON(w, http.StatusCreated, sc)
}

// ListScripts handles GET /scripts.
func (h *Handler) ListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.svc.ListScripts(r.Context())
	if err != nil {
		h.writeError(w, "list scripts", err)
		return
	}
	if scripts == nil {
		scripts = []*script.Script{}
	}
	h.writeJSON(w, http.StatusOK, scripts)
}

// GetScript handles GET /scripts/{script_id}.
func (h *Handler) GetScript(w http.ResponseWriter, r *http.Request) {
	sc, err := h.svc.GetScript(r.Context(), chi.URLParam(r, "script_id"))
	if err != nil {
		h.writeError(w, "get script", err)
		return
	}
	h.writeJSON(w, http.StatusOK, sc)
}

// DeleteScript handles DELETE /scripts/{script_id}. Live playback of the
// script's segments stops before the script disappears.
func (h *Handler) DeleteScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "script_id")
	if err := h.svc.DeleteScript(r.Context(), id); err != nil {
		h.writeError(w, "delete script", err)
		return
	}
	h.log.Info("script deleted", slog.String("script_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSegment handles PUT /scripts/{script_id}/segments/{index}.
// Body: { "text": "...", "visual": "..." }.
func (h *Handler) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	id, index, ok := h.segmentParams(w, r)
	if !ok {
		return
	}

	var body struct {
		Text   string `json:"text"`
		Visual string `json:"visual"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid segment body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sc, err := h.svc.UpdateSegment(r.Context(), id, index, body.Text, body.Visual)
	if err != nil {
		h.writeError(w, "update segment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, sc)
}

// TogglePlayback handles POST /scripts/{script_id}/segments/{index}/toggle.
func (h *Handler) TogglePlayback(w http.ResponseWriter, r *http.Request) {
	id, index, ok := h.segmentParams(w, r)
	if !ok {
		return
	}

	status, err := h.svc.Toggle(r.Context(), id, index)
	if err != nil {
		h.log.Warn("toggle failed",
			slog.String("script_id", id),
			slog.Int("segment", index),
			slog.String("error", err.Error()))
		h.writeError(w, "toggle playback", err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// StopPlayback handles POST /scripts/{script_id}/segments/{index}/stop.
func (h *Handler) StopPlayback(w http.ResponseWriter, r *http.Request) {
	id, index, ok := h.segmentParams(w, r)
	if !ok {
		return
	}

	if err := h.svc.StopSegment(r.Context(), id, index); err != nil {
		h.writeError(w, "stop playback", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetAmbience handles PUT /scripts/{script_id}/segments/{index}/ambience.
// Body: { "enabled": true, "volume": 0.3 }.
func (h *Handler) SetAmbience(w http.ResponseWriter, r *http.Request) {
	id, index, ok := h.segmentParams(w, r)
	if !ok {
		return
	}

	var body struct {
		Enabled bool    `json:"enabled"`
		Volume  float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	status, err := h.svc.SetAmbience(r.Context(), id, index, body.Enabled, body.Volume)
	if err != nil {
		h.writeError(w, "set ambience", err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// PlaybackStatus handles GET /scripts/{script_id}/segments/{index}/playback.
func (h *Handler) PlaybackStatus(w http.ResponseWriter, r *http.Request) {
	id, index, ok := h.segmentParams(w, r)
	if !ok {
		return
	}

	status, err := h.svc.PlaybackStatus(r.Context(), id, index)
	if err != nil {
		h.writeError(w, "playback status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// GenerateImage handles POST /scripts/{script_id}/segments/{index}/image.
func (h *Handler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	id, index, ok := h.segmentParams(w, r)
	if !ok {
		return
	}

	uri, err := h.svc.GenerateSegmentImage(r.Context(), id, index)
	if err != nil {
		h.writeError(w, "generate image", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"image": uri})
}

// AnalyzeVoice handles POST /voice/analysis.
// Body: { "audio": "<base64>" }.
func (h *Handler) AnalyzeVoice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Audio string `json:"audio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Audio == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	profile, err := h.svc.AnalyzeVoice(r.Context(), body.Audio)
	if err != nil {
		h.writeError(w, "analyze voice", err)
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

// segmentParams extracts and validates the script ID and segment index URL
// parameters, writing a 400 on malformed input.
func (h *Handler) segmentParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	id := chi.URLParam(r, "script_id")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return "", 0, false
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return "", 0, false
	}
	return id, index, true
}

// writeError maps service errors onto HTTP status codes: missing scripts and
// bad indexes come back to the client, upstream generation and decode
// failures surface as bad gateway, everything else is internal.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var status int
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrBadIndex), errors.Is(err, ErrEmptyTopic),
		errors.Is(err, script.ErrInvalidSegment):
		status = http.StatusBadRequest
	case errors.Is(err, generate.ErrGeneration), errors.Is(err, audio.ErrDecode):
		status = http.StatusBadGateway
	default:
		h.log.Error(op+" failed", slog.String("error", err.Error()))
		status = http.StatusInternalServerError
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encode response", slog.String("error", err.Error()))
	}
}
