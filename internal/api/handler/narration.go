package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/whispersoftheland/whispers/internal/api/middleware"
	"github.com/whispersoftheland/whispers/internal/api/response"
	"github.com/whispersoftheland/whispers/internal/api/validation"
	"github.com/whispersoftheland/whispers/internal/narration"
	"github.com/whispersoftheland/whispers/internal/story"
)

// Synthesizer turns story text into narrated audio.
type Synthesizer interface {
	Configured() bool
	DefaultVoice() string
	Model() string
	RecommendedVoices() []narration.RecommendedVoice
	ListVoices(ctx context.Context) ([]narration.Voice, error)
	GenerateStory(ctx context.Context, text, voiceID string) ([]byte, error)
}

type narrationStatus struct {
	Configured        bool                         `json:"configured"`
	DefaultVoice      string                       `json:"defaultVoice"`
	Model             string                       `json:"model"`
	RecommendedVoices []narration.RecommendedVoice `json:"recommendedVoices"`
}

type generateNarrationRequest struct {
	VoiceID string `json:"voiceId"`
}

// NarrationHandler handles the text-to-speech endpoints.
type NarrationHandler struct {
	tts         Synthesizer
	backend     Backend
	audioBucket string
	now         func() time.Time
}

// NewNarrationHandler creates a new NarrationHandler.
func NewNarrationHandler(tts Synthesizer, b Backend, audioBucket string) *NarrationHandler {
	return &NarrationHandler{
		tts:         tts,
		backend:     b,
		audioBucket: audioBucket,
		now:         time.Now,
	}
}

// Status handles GET /narration/status.
func (h *NarrationHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, narrationStatus{
		Configured:        h.tts.Configured(),
		DefaultVoice:      h.tts.DefaultVoice(),
		Model:             h.tts.Model(),
		RecommendedVoices: h.tts.RecommendedVoices(),
	}, middleware.GetRequestID(r.Context()))
}

// Voices handles GET /narration/voices.
func (h *NarrationHandler) Voices(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	voices, err := h.tts.ListVoices(r.Context())
	if err != nil {
		h.ttsError(w, err, requestID)
		return
	}

	response.Success(w, http.StatusOK, voices, requestID)
}

// Generate handles POST /admin/stories/{id}/narration. The English text is
// synthesized, stored as audio/mpeg and linked from the story.
func (h *NarrationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	var req generateNarrationRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := decodeOptionalJSON(r.Body, &req); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidJSON, "Request body must be valid JSON", requestID)
		return
	}

	if !h.tts.Configured() {
		h.ttsError(w, narration.ErrNotConfigured, requestID)
		return
	}

	c := h.backend.Current()
	s, err := c.Stories.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, story.ErrNotFound) {
			response.Err(w, http.StatusNotFound, response.CodeNotFound, "Story not found", requestID)
			return
		}
		slog.Error("failed to get story for narration", "error", err, "id", id, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Failed to generate narration", requestID)
		return
	}
	if strings.TrimSpace(s.EnglishText) == "" {
		response.ErrWithDetails(w, http.StatusBadRequest, response.CodeValidation, "Input validation failed",
			[]validation.FieldError{{Field: "englishText", Message: "story has no English text to narrate"}}, requestID)
		return
	}

	audio, err := h.tts.GenerateStory(r.Context(), s.EnglishText, strings.TrimSpace(req.VoiceID))
	if err != nil {
		h.ttsError(w, err, requestID)
		return
	}

	path := fmt.Sprintf("english/english-%s-%d.mp3", id, h.now().UnixMilli())
	obj, err := c.Storage.Upload(r.Context(), h.audioBucket, path, audio, "audio/mpeg")
	if err != nil {
		slog.Error("failed to upload narration", "error", err, "id", id, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Failed to store narration", requestID)
		return
	}

	updated, err := c.Stories.SetEnglishAudioURL(r.Context(), id, obj.URL)
	if err != nil {
		slog.Error("failed to link narration", "error", err, "id", id, "requestId", requestID)
		if delErr := c.Storage.Delete(context.WithoutCancel(r.Context()), obj.Bucket, obj.Path); delErr != nil {
			slog.Warn("failed to remove orphaned narration", "error", delErr, "path", obj.Path)
		}
		if errors.Is(err, story.ErrNotFound) {
			response.Err(w, http.StatusNotFound, response.CodeNotFound, "Story not found", requestID)
			return
		}
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Failed to store narration", requestID)
		return
	}

	slog.Info("narration generated", "id", id, "bytes", len(audio), "requestId", requestID)
	response.Success(w, http.StatusOK, toStoryResponse(updated, true), requestID)
}

func (h *NarrationHandler) ttsError(w http.ResponseWriter, err error, requestID string) {
	if errors.Is(err, narration.ErrNotConfigured) {
		response.Err(w, http.StatusServiceUnavailable, response.CodeNotConfigured, "Narration is not configured", requestID)
		return
	}
	slog.Error("narration request failed", "error", err, "requestId", requestID)
	response.Err(w, http.StatusBadGateway, response.CodeUpstream, "The narration service could not complete the request", requestID)
}

// decodeOptionalJSON decodes body into dst, accepting an empty body.
func decodeOptionalJSON(body io.Reader, dst any) error {
	err := json.NewDecoder(body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
