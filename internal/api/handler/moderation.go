package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/whispersoftheland/whispers/internal/api/middleware"
	"github.com/whispersoftheland/whispers/internal/api/response"
	"github.com/whispersoftheland/whispers/internal/story"
)

// ModerationHandler handles the moderator-only story endpoints. Routes are
// expected to sit behind middleware.Protect(true, ...).
type ModerationHandler struct {
	backend Backend
}

// NewModerationHandler creates a new ModerationHandler.
func NewModerationHandler(b Backend) *ModerationHandler {
	return &ModerationHandler{backend: b}
}

// ListPending handles GET /admin/stories.
func (h *ModerationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	filter, ok := listFilter(w, r, requestID)
	if !ok {
		return
	}
	pending := false
	filter.Approved = &pending

	result, err := h.backend.Current().Stories.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list pending stories", "error", err, "requestId", requestID)
		response.Err(w, http.StatusServiceUnavailable, response.CodeUnavailable, "Pending stories are temporarily unavailable", requestID)
		return
	}

	response.List(w, http.StatusOK, toStoryResponses(result.Stories, true), response.Page{
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
	}, requestID)
}

// Get handles GET /admin/stories/{id}.
func (h *ModerationHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	s, err := h.backend.Current().Stories.GetByID(r.Context(), id)
	if err != nil {
		h.storyError(w, err, "get", requestID)
		return
	}

	response.Success(w, http.StatusOK, toStoryResponse(s, true), requestID)
}

// Approve handles POST /admin/stories/{id}/approve.
func (h *ModerationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	s, err := h.backend.Current().Stories.Approve(r.Context(), id)
	if err != nil {
		h.storyError(w, err, "approve", requestID)
		return
	}

	slog.Info("story approved", "id", id, "requestId", requestID)
	response.Success(w, http.StatusOK, toStoryResponse(s, true), requestID)
}

// Reject handles DELETE /admin/stories/{id}. Rejected submissions are removed.
func (h *ModerationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	if err := h.backend.Current().Stories.Delete(r.Context(), id); err != nil {
		h.storyError(w, err, "reject", requestID)
		return
	}

	slog.Info("story rejected", "id", id, "requestId", requestID)
	response.NoContent(w)
}

func (h *ModerationHandler) storyError(w http.ResponseWriter, err error, op, requestID string) {
	if errors.Is(err, story.ErrNotFound) {
		response.Err(w, http.StatusNotFound, response.CodeNotFound, "Story not found", requestID)
		return
	}
	slog.Error("failed to "+op+" story", "error", err, "requestId", requestID)
	response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Failed to "+op+" story", requestID)
}
