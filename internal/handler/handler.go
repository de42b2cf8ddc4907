package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/fluentedge/placement/internal/i18n"
	"github.com/fluentedge/placement/internal/model"
	"github.com/fluentedge/placement/internal/scoring"
	"github.com/fluentedge/placement/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	scorer    *scoring.Service
	tokenHash []byte
}

// New creates a new Handler. tokenHash is the bcrypt hash of the service API
// token; nil disables authentication.
func New(s *store.Store, scorer *scoring.Service, tokenHash []byte) *Handler {
	return &Handler{store: s, scorer: scorer, tokenHash: tokenHash}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Use(h.requireToken)
		api.Post("/sessions", h.handleCreateSession)
		api.Post("/sessions/{sessionID}/answers", h.handleRecordAnswer)
		api.Post("/sessions/{sessionID}/complete", h.handleCompleteSession)
		api.Post("/sessions/{sessionID}/score", h.handleScoreSession)
		api.Get("/sessions/{sessionID}/results", h.handleResults)
		api.Post("/sessions/{sessionID}/apply-level", h.handleApplyLevel)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondResult(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID int64 `json:"templateId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}

	sessionID, err := h.store.CreateSession(req.TemplateID)
	if err != nil {
		slog.Error("create session failed", "template_id", req.TemplateID, "error", err)
		respondError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
		return
	}

	respondResult(w, http.StatusCreated, map[string]string{"sessionId": sessionID})
}

func (h *Handler) handleRecordAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var ans model.Answer
	if err := json.NewDecoder(r.Body).Decode(&ans); err != nil || ans.InstanceID == "" {
		respondError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}

	sess, err := h.store.GetSession(sessionID)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if sess.Status != model.StatusInProgress {
		respondError(w, http.StatusConflict, appI18n.T(r.Context(), "SessionClosed"))
		return
	}

	if err := h.store.RecordAnswer(sessionID, ans); err != nil {
		slog.Error("record answer failed", "session_id", sessionID, "instance_id", ans.InstanceID, "error", err)
		respondError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
		return
	}

	respondResult(w, http.StatusOK, map[string]string{"instanceId": ans.InstanceID})
}

func (h *Handler) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.store.CompleteSession(sessionID); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	respondResult(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

func (h *Handler) handleScoreSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	summary, err := h.scorer.ScoreSession(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, scoring.ErrNoEvaluator):
			respondError(w, http.StatusServiceUnavailable, appI18n.T(r.Context(), "ScoringUnavailable"))
		case errors.Is(err, model.ErrSessionNotFound):
			respondError(w, http.StatusNotFound, appI18n.T(r.Context(), "SessionNotFound"))
		default:
			slog.Error("scoring failed", "session_id", sessionID, "error", err)
			respondError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ScoringFailed"))
		}
		return
	}

	respondResult(w, http.StatusOK, summary)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	overall, sections, err := h.store.GetResults(sessionID)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if overall == nil {
		respondError(w, http.StatusNotFound, appI18n.T(r.Context(), "ResultsNotReady"))
		return
	}

	respondResult(w, http.StatusOK, map[string]any{
		"overallResult": overall,
		"sectionScores": sections,
	})
}

func (h *Handler) handleApplyLevel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.store.SetLevelApplied(sessionID); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	respondResult(w, http.StatusOK, map[string]bool{"levelApplied": true})
}

func (h *Handler) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, model.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, appI18n.T(r.Context(), "SessionNotFound"))
		return
	}
	slog.Error("store error", "error", err)
	respondError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
}

func respondResult(w http.ResponseWriter, status int, result any) {
	respondJSON(w, status, map[string]any{"success": true, "result": result})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, "error": message})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response", "error", err)
	}
}
