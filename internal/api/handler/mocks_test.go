package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/whispersoftheland/whispers/internal/backend"
	"github.com/whispersoftheland/whispers/internal/narration"
	"github.com/whispersoftheland/whispers/internal/storage"
	"github.com/whispersoftheland/whispers/internal/story"
)

// mockStories implements story.Repository for testing.
type mockStories struct {
	createFn   func(ctx context.Context, s *story.Story) error
	getByIDFn  func(ctx context.Context, id uuid.UUID) (*story.Story, error)
	listFn     func(ctx context.Context, filter story.ListFilter) (*story.ListResult, error)
	approveFn  func(ctx context.Context, id uuid.UUID) (*story.Story, error)
	setAudioFn func(ctx context.Context, id uuid.UUID, url string) (*story.Story, error)
	deleteFn   func(ctx context.Context, id uuid.UUID) error
}

func (m *mockStories) Create(ctx context.Context, s *story.Story) error {
	if m.createFn != nil {
		return m.createFn(ctx, s)
	}
	s.ID = uuid.New()
	return nil
}

func (m *mockStories) GetByID(ctx context.Context, id uuid.UUID) (*story.Story, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, story.ErrNotFound
}

func (m *mockStories) List(ctx context.Context, filter story.ListFilter) (*story.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return &story.ListResult{Stories: []story.Story{}, Page: filter.Page, Limit: filter.Limit}, nil
}

func (m *mockStories) Approve(ctx context.Context, id uuid.UUID) (*story.Story, error) {
	if m.approveFn != nil {
		return m.approveFn(ctx, id)
	}
	return nil, story.ErrNotFound
}

func (m *mockStories) SetEnglishAudioURL(ctx context.Context, id uuid.UUID, url string) (*story.Story, error) {
	if m.setAudioFn != nil {
		return m.setAudioFn(ctx, id, url)
	}
	return nil, story.ErrNotFound
}

func (m *mockStories) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return story.ErrNotFound
}

// mockObjects implements storage.ObjectStore, recording what was stored.
type mockObjects struct {
	mu       sync.Mutex
	uploadFn func(bucket, path string) error
	uploads  map[string]string // bucket/path -> content type
	deleted  []string
}

func newMockObjects() *mockObjects {
	return &mockObjects{uploads: make(map[string]string)}
}

func (m *mockObjects) Upload(_ context.Context, bucket, path string, _ []byte, contentType string) (storage.Object, error) {
	if m.uploadFn != nil {
		if err := m.uploadFn(bucket, path); err != nil {
			return storage.Object{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[bucket+"/"+path] = contentType
	return storage.Object{Bucket: bucket, Path: path, URL: m.PublicURL(bucket, path)}, nil
}

func (m *mockObjects) Delete(_ context.Context, bucket, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, bucket+"/"+path)
	return nil
}

func (m *mockObjects) PublicURL(bucket, path string) string {
	return "https://cdn.test/" + bucket + "/" + path
}

func (m *mockObjects) snapshot() (map[string]string, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uploads := make(map[string]string, len(m.uploads))
	for k, v := range m.uploads {
		uploads[k] = v
	}
	return uploads, append([]string(nil), m.deleted...)
}

// mockSynth implements handler.Synthesizer for testing.
type mockSynth struct {
	configured bool
	voicesFn   func(ctx context.Context) ([]narration.Voice, error)
	generateFn func(ctx context.Context, text, voiceID string) ([]byte, error)
}

func (m *mockSynth) Configured() bool     { return m.configured }
func (m *mockSynth) DefaultVoice() string { return "voice-default" }
func (m *mockSynth) Model() string        { return "eleven_multilingual_v2" }

func (m *mockSynth) RecommendedVoices() []narration.RecommendedVoice {
	return []narration.RecommendedVoice{{ID: "voice-default", Name: "Sarah", Description: "Warm narrator"}}
}

func (m *mockSynth) ListVoices(ctx context.Context) ([]narration.Voice, error) {
	if m.voicesFn != nil {
		return m.voicesFn(ctx)
	}
	return nil, narration.ErrNotConfigured
}

func (m *mockSynth) GenerateStory(ctx context.Context, text, voiceID string) ([]byte, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, text, voiceID)
	}
	return []byte("ID3"), nil
}

// staticBackend always hands out the same client.
type staticBackend struct {
	client *backend.Client
}

func (b staticBackend) Current() *backend.Client { return b.client }

func withStories(repo story.Repository) staticBackend {
	return staticBackend{client: &backend.Client{Stories: repo, Storage: newMockObjects()}}
}

// withURLParam sets a chi URL parameter on the request.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	apiErr, ok := decodeEnvelope(t, w)["error"].(map[string]any)
	require.True(t, ok, "expected an error envelope, got %s", w.Body.String())
	return apiErr["code"].(string)
}

func sampleStory(approved bool) *story.Story {
	return &story.Story{
		ID:               uuid.New(),
		Title:            "Tsuro naGudo",
		TitleEnglish:     "The Hare and the Baboon",
		Country:          "Zimbabwe",
		Language:         "Shona",
		Theme:            "Tricksters",
		NativeText:       "Kare kare...",
		EnglishText:      "Long ago, the hare tricked the baboon.",
		Contributor:      "Tendai",
		ContributorEmail: "tendai@example.com",
		IsApproved:       approved,
	}
}
