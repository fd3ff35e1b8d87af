package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/whispersoftheland/whispers/internal/api/middleware"
	"github.com/whispersoftheland/whispers/internal/api/response"
	"github.com/whispersoftheland/whispers/internal/api/validation"
	"github.com/whispersoftheland/whispers/internal/storage"
	"github.com/whispersoftheland/whispers/internal/story"
)

const (
	maxSubmissionBytes = 2*validation.MaxAudioBytes + validation.MaxIllustrationBytes + 1<<20
	multipartMemory    = 8 << 20

	fallbackNotice = "Stories are temporarily unavailable. Showing sample stories instead."
)

// Buckets names the object storage buckets for attachments.
type Buckets struct {
	Audio         string
	Illustrations string
}

// storyResponse is the API representation of a story. ContributorEmail is
// only filled in for moderators.
type storyResponse struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	TitleEnglish     string  `json:"titleEnglish"`
	Country          string  `json:"country"`
	Language         string  `json:"language"`
	Theme            string  `json:"theme"`
	NativeText       string  `json:"nativeText"`
	EnglishText      string  `json:"englishText"`
	Contributor      string  `json:"contributor"`
	ContributorEmail string  `json:"contributorEmail,omitempty"`
	NativeAudioURL   *string `json:"nativeAudioUrl"`
	EnglishAudioURL  *string `json:"englishAudioUrl"`
	IllustrationURL  *string `json:"illustrationUrl"`
	IsApproved       bool    `json:"isApproved"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        string  `json:"updatedAt"`
}

func toStoryResponse(s *story.Story, moderator bool) storyResponse {
	resp := storyResponse{
		ID:              s.ID.String(),
		Title:           s.Title,
		TitleEnglish:    s.TitleEnglish,
		Country:         s.Country,
		Language:        s.Language,
		Theme:           s.Theme,
		NativeText:      s.NativeText,
		EnglishText:     s.EnglishText,
		Contributor:     s.Contributor,
		NativeAudioURL:  s.NativeAudioURL,
		EnglishAudioURL: s.EnglishAudioURL,
		IllustrationURL: s.IllustrationURL,
		IsApproved:      s.IsApproved,
		CreatedAt:       s.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:       s.UpdatedAt.UTC().Format(timeFormat),
	}
	if moderator {
		resp.ContributorEmail = s.ContributorEmail
	}
	return resp
}

func toStoryResponses(stories []story.Story, moderator bool) []storyResponse {
	items := make([]storyResponse, 0, len(stories))
	for i := range stories {
		items = append(items, toStoryResponse(&stories[i], moderator))
	}
	return items
}

// StoryHandler handles the public story endpoints.
type StoryHandler struct {
	backend       Backend
	buckets       Buckets
	settleTimeout time.Duration
	now           func() time.Time
}

// NewStoryHandler creates a new StoryHandler.
func NewStoryHandler(b Backend, buckets Buckets, settleTimeout time.Duration) *StoryHandler {
	return &StoryHandler{
		backend:       b,
		buckets:       buckets,
		settleTimeout: settleTimeout,
		now:           time.Now,
	}
}

// List handles GET /stories. Only approved stories are listed. When the
// content datastore cannot be read, sample stories are served instead and
// the response is flagged as a fallback.
func (h *StoryHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	filter, ok := listFilter(w, r, requestID)
	if !ok {
		return
	}
	approved := true
	filter.Approved = &approved

	result, err := h.backend.Current().Stories.List(r.Context(), filter)
	if err != nil {
		slog.Warn("failed to list stories; serving samples", "error", err, "requestId", requestID)
		result = story.Samples(filter)
		response.List(w, http.StatusOK, toStoryResponses(result.Stories, false), response.Page{
			Total:    result.Total,
			Page:     result.Page,
			Limit:    result.Limit,
			Fallback: true,
			Notice:   fallbackNotice,
		}, requestID)
		return
	}

	response.List(w, http.StatusOK, toStoryResponses(result.Stories, false), response.Page{
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
	}, requestID)
}

// GetByID handles GET /stories/{id}. Unapproved stories are reported as not
// found unless the caller is a moderator.
func (h *StoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	s, err := h.backend.Current().Stories.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, story.ErrNotFound) {
			response.Err(w, http.StatusNotFound, response.CodeNotFound, "Story not found", requestID)
			return
		}
		if sample, ok := story.SampleByID(id); ok {
			slog.Warn("failed to get story; serving sample", "error", err, "id", id, "requestId", requestID)
			meta := response.NewMeta(requestID)
			meta.Notice = fallbackNotice
			response.JSON(w, http.StatusOK, response.Envelope{Data: toStoryResponse(sample, false), Meta: meta})
			return
		}
		slog.Error("failed to get story", "error", err, "id", id, "requestId", requestID)
		response.Err(w, http.StatusServiceUnavailable, response.CodeUnavailable, "Stories are temporarily unavailable", requestID)
		return
	}

	moderator := middleware.Settled(r, h.settleTimeout).IsPrivileged
	if !s.IsApproved && !moderator {
		response.Err(w, http.StatusNotFound, response.CodeNotFound, "Story not found", requestID)
		return
	}

	response.Success(w, http.StatusOK, toStoryResponse(s, moderator), requestID)
}

// attachment is one uploaded file of a submission.
type attachment struct {
	field       string
	bucket      string
	path        string
	contentType string
	body        []byte
	obj         storage.Object
}

// Submit handles POST /stories. Anyone may submit; the story waits for
// moderation. Attachments are uploaded concurrently before the insert and
// removed again if the insert fails.
func (h *StoryHandler) Submit(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidForm, "Request body must be a valid multipart form", requestID)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sub := validation.StorySubmission{
		Title:            strings.TrimSpace(r.FormValue("title")),
		TitleEnglish:     strings.TrimSpace(r.FormValue("titleEnglish")),
		Country:          strings.TrimSpace(r.FormValue("country")),
		Language:         strings.TrimSpace(r.FormValue("language")),
		Theme:            strings.TrimSpace(r.FormValue("theme")),
		NativeText:       strings.TrimSpace(r.FormValue("nativeText")),
		EnglishText:      strings.TrimSpace(r.FormValue("englishText")),
		Contributor:      strings.TrimSpace(r.FormValue("contributor")),
		ContributorEmail: strings.TrimSpace(r.FormValue("contributorEmail")),
	}
	fieldErrors := validation.ValidateStorySubmission(sub)

	stamp := h.now().UnixMilli()
	var files []*attachment
	for _, slot := range []struct {
		field, bucket, prefix string
		check                 func(validation.Upload) []validation.FieldError
	}{
		{"nativeAudio", h.buckets.Audio, "native/", validation.ValidateAudio},
		{"englishAudio", h.buckets.Audio, "english/", validation.ValidateAudio},
		{"illustration", h.buckets.Illustrations, "", validation.ValidateIllustration},
	} {
		f, hdr, err := r.FormFile(slot.field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			response.Err(w, http.StatusBadRequest, response.CodeInvalidForm, fmt.Sprintf("%s could not be read", slot.field), requestID)
			return
		}
		a, errs := readAttachment(f, hdr, slot.field, slot.check)
		_ = f.Close()
		if len(errs) > 0 {
			fieldErrors = append(fieldErrors, errs...)
			continue
		}
		a.bucket = slot.bucket
		a.path = fmt.Sprintf("%s%d-%s", slot.prefix, stamp, objectName(hdr.Filename))
		files = append(files, a)
	}

	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, response.CodeValidation, "Input validation failed", fieldErrors, requestID)
		return
	}

	c := h.backend.Current()
	if err := uploadAll(r.Context(), c.Storage, files); err != nil {
		slog.Error("failed to upload story attachments", "error", err, "requestId", requestID)
		removeUploaded(c.Storage, files)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Failed to upload attachments", requestID)
		return
	}

	s := &story.Story{
		Title:            sub.Title,
		TitleEnglish:     sub.TitleEnglish,
		Country:          sub.Country,
		Language:         sub.Language,
		Theme:            sub.Theme,
		NativeText:       sub.NativeText,
		EnglishText:      sub.EnglishText,
		Contributor:      sub.Contributor,
		ContributorEmail: sub.ContributorEmail,
		IsApproved:       false,
	}
	for _, a := range files {
		url := a.obj.URL
		switch a.field {
		case "nativeAudio":
			s.NativeAudioURL = &url
		case "englishAudio":
			s.EnglishAudioURL = &url
		case "illustration":
			s.IllustrationURL = &url
		}
	}

	if err := c.Stories.Create(r.Context(), s); err != nil {
		slog.Error("failed to create story record", "error", err, "requestId", requestID)
		removeUploaded(c.Storage, files)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Failed to submit story", requestID)
		return
	}

	slog.Info("story submitted", "id", s.ID, "language", s.Language, "attachments", len(files), "requestId", requestID)
	response.Success(w, http.StatusCreated, toStoryResponse(s, false), requestID)
}

func readAttachment(f multipart.File, hdr *multipart.FileHeader, field string, check func(validation.Upload) []validation.FieldError) (*attachment, []validation.FieldError) {
	contentType := hdr.Header.Get("Content-Type")
	if errs := check(validation.Upload{Field: field, ContentType: contentType, Size: hdr.Size}); len(errs) > 0 {
		return nil, errs
	}
	body, err := io.ReadAll(f)
	if err != nil {
		return nil, []validation.FieldError{{Field: field, Message: field + " could not be read"}}
	}
	return &attachment{field: field, contentType: contentType, body: body}, nil
}

func uploadAll(ctx context.Context, store storage.ObjectStore, files []*attachment) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range files {
		g.Go(func() error {
			obj, err := store.Upload(gctx, a.bucket, a.path, a.body, a.contentType)
			if err != nil {
				return fmt.Errorf("uploading %s: %w", a.field, err)
			}
			a.obj = obj
			return nil
		})
	}
	return g.Wait()
}

// removeUploaded deletes the attachments that made it to storage.
func removeUploaded(store storage.ObjectStore, files []*attachment) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, a := range files {
		if a.obj.Path == "" {
			continue
		}
		if err := store.Delete(ctx, a.obj.Bucket, a.obj.Path); err != nil {
			slog.Warn("failed to remove orphaned attachment", "error", err, "bucket", a.obj.Bucket, "path", a.obj.Path)
		}
	}
}

// objectName reduces an uploaded file name to a safe object name.
func objectName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '-'
	}, name)
	if name == "" || name == "." {
		return "file"
	}
	return name
}
