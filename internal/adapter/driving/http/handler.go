// Package httphandler is the HTTP driving adapter that serves the tracking
// REST API.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/avasilyev/issuegram/internal/application"
	"github.com/avasilyev/issuegram/internal/domain/model"
	"github.com/avasilyev/issuegram/internal/domain/port/driven"
)

// Handler serves the chat-scoped tracking API.
type Handler struct {
	trackSvc *application.TrackService
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(trackSvc *application.TrackService, logger *slog.Logger) *Handler {
	return &Handler{
		trackSvc: trackSvc,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/chats/{chatID}/repos", h.ListRepos)
	mux.HandleFunc("POST /api/v1/chats/{chatID}/repos", h.TrackRepo)
	mux.HandleFunc("DELETE /api/v1/chats/{chatID}/repos/{owner}/{repo}", h.UntrackRepo)
	mux.HandleFunc("GET /api/v1/chats/{chatID}/repos/{owner}/{repo}/labels", h.ListLabels)
	mux.HandleFunc("POST /api/v1/chats/{chatID}/repos/{owner}/{repo}/labels/toggle", h.ToggleLabel)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListRepos returns the repositories tracked by a chat.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFromPath(w, r)
	if !ok {
		return
	}

	repos, err := h.trackSvc.ListTracked(r.Context(), chatID)
	if err != nil {
		h.logger.Error("failed to list tracked repos", "chat", chatID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, RepoResponse{
			FullName: repo.FullName,
			Owner:    repo.Owner,
			Name:     repo.Name,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// TrackRepo starts tracking a repository for a chat. The repository may be
// given as "owner/name" or as a github.com URL.
func (h *Handler) TrackRepo(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFromPath(w, r)
	if !ok {
		return
	}

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	repo, err := h.trackSvc.Track(r.Context(), chatID, req.Repo)
	switch {
	case err == nil:
	case errors.Is(err, application.ErrRepoNotFound):
		writeError(w, http.StatusNotFound, "repository not found on github")
		return
	case errors.Is(err, driven.ErrAlreadyTracked):
		writeError(w, http.StatusConflict, "repository already tracked")
		return
	case errors.Is(err, model.ErrInvalidRepoRef):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, driven.ErrUnauthorized):
		h.logger.Error("github credentials rejected", "error", err)
		writeError(w, http.StatusBadGateway, "github authentication failed")
		return
	default:
		h.logger.Error("failed to track repo", "chat", chatID, "repo", req.Repo, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, RepoResponse{
		FullName: repo.FullName,
		Owner:    repo.Owner,
		Name:     repo.Name,
	})
}

// UntrackRepo stops tracking a repository for a chat.
func (h *Handler) UntrackRepo(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFromPath(w, r)
	if !ok {
		return
	}
	ref := r.PathValue("owner") + "/" + r.PathValue("repo")

	if _, err := h.trackSvc.Untrack(r.Context(), chatID, ref); err != nil {
		if errors.Is(err, driven.ErrNotTracked) {
			writeError(w, http.StatusNotFound, "repository not tracked")
			return
		}
		h.logger.Error("failed to untrack repo", "chat", chatID, "repo", ref, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListLabels returns the label subscription for a tracked repository.
func (h *Handler) ListLabels(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFromPath(w, r)
	if !ok {
		return
	}
	ref := r.PathValue("owner") + "/" + r.PathValue("repo")

	labels, err := h.trackSvc.Labels(r.Context(), chatID, ref)
	if err != nil {
		if errors.Is(err, driven.ErrNotTracked) {
			writeError(w, http.StatusNotFound, "repository not tracked")
			return
		}
		h.logger.Error("failed to list labels", "chat", chatID, "repo", ref, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, LabelsResponse{Labels: labels})
}

// ToggleLabel flips a label's membership in a tracked repository's
// subscription and reports the resulting state.
func (h *Handler) ToggleLabel(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFromPath(w, r)
	if !ok {
		return
	}
	ref := r.PathValue("owner") + "/" + r.PathValue("repo")

	var req ToggleLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}

	tracked, err := h.trackSvc.ToggleLabel(r.Context(), chatID, ref, req.Label)
	if err != nil {
		if errors.Is(err, driven.ErrNotTracked) {
			writeError(w, http.StatusNotFound, "repository not tracked")
			return
		}
		h.logger.Error("failed to toggle label", "chat", chatID, "repo", ref, "label", req.Label, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, ToggleLabelResponse{Label: req.Label, Tracked: tracked})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// chatIDFromPath parses the chatID path segment, writing a 400 response on
// failure.
func chatIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	chatID, err := strconv.ParseInt(r.PathValue("chatID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return 0, false
	}
	return chatID, true
}
