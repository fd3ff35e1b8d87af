package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whispersoftheland/whispers/internal/api/handler"
	"github.com/whispersoftheland/whispers/internal/story"
)

func TestModerationHandler_ListPending(t *testing.T) {
	var got story.ListFilter
	repo := &mockStories{listFn: func(_ context.Context, f story.ListFilter) (*story.ListResult, error) {
		got = f
		return &story.ListResult{Stories: []story.Story{*sampleStory(false)}, Total: 1, Page: 1, Limit: 20}, nil
	}}
	w := httptest.NewRecorder()

	handler.NewModerationHandler(withStories(repo)).ListPending(w, httptest.NewRequest(http.MethodGet, "/admin/stories", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got.Approved)
	assert.False(t, *got.Approved)
	items := decodeEnvelope(t, w)["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "tendai@example.com", items[0].(map[string]any)["contributorEmail"])
}

func TestModerationHandler_ListPending_Unavailable(t *testing.T) {
	repo := &mockStories{listFn: func(context.Context, story.ListFilter) (*story.ListResult, error) {
		return nil, errors.New("connection refused")
	}}
	w := httptest.NewRecorder()

	handler.NewModerationHandler(withStories(repo)).ListPending(w, httptest.NewRequest(http.MethodGet, "/admin/stories", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", errorCode(t, w))
}

func TestModerationHandler_Approve(t *testing.T) {
	s := sampleStory(false)
	tests := []struct {
		name       string
		id         string
		approveErr error
		wantStatus int
		wantCode   string
	}{
		{name: "approved", id: s.ID.String(), wantStatus: http.StatusOK},
		{name: "missing", id: uuid.NewString(), approveErr: story.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "write failure", id: s.ID.String(), approveErr: errors.New("read-only replica"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
		{name: "bad id", id: "42", wantStatus: http.StatusBadRequest, wantCode: "INVALID_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			repo := &mockStories{approveFn: func(_ context.Context, id uuid.UUID) (*story.Story, error) {
				calls++
				if tt.approveErr != nil {
					return nil, tt.approveErr
				}
				approved := *s
				approved.IsApproved = true
				return &approved, nil
			}}
			w := httptest.NewRecorder()
			req := withURLParam(httptest.NewRequest(http.MethodPost, "/admin/stories/"+tt.id+"/approve", nil), "id", tt.id)

			handler.NewModerationHandler(withStories(repo)).Approve(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, w))
			} else {
				assert.Equal(t, true, decodeEnvelope(t, w)["data"].(map[string]any)["isApproved"])
			}
			if tt.approveErr != nil {
				assert.Equal(t, 1, calls, "write failures are not retried")
			}
		})
	}
}

func TestModerationHandler_Reject(t *testing.T) {
	id := uuid.New()
	var deleted uuid.UUID
	repo := &mockStories{deleteFn: func(_ context.Context, got uuid.UUID) error {
		if got != id {
			return story.ErrNotFound
		}
		deleted = got
		return nil
	}}
	h := handler.NewModerationHandler(withStories(repo))

	w := httptest.NewRecorder()
	h.Reject(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/admin/stories/"+id.String(), nil), "id", id.String()))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, id, deleted)

	other := uuid.NewString()
	w = httptest.NewRecorder()
	h.Reject(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/admin/stories/"+other, nil), "id", other))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModerationHandler_Get(t *testing.T) {
	s := sampleStory(false)
	repo := &mockStories{getByIDFn: func(context.Context, uuid.UUID) (*story.Story, error) { return s, nil }}
	w := httptest.NewRecorder()

	handler.NewModerationHandler(withStories(repo)).Get(w, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", s.ID.String()))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, false, data["isApproved"])
	assert.Equal(t, s.ContributorEmail, data["contributorEmail"])
}
