package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whispersoftheland/whispers/internal/api"
	"github.com/whispersoftheland/whispers/internal/api/handler"
	"github.com/whispersoftheland/whispers/internal/api/middleware"
	"github.com/whispersoftheland/whispers/internal/narration"
	"github.com/whispersoftheland/whispers/internal/session/sessiontest"
	"github.com/whispersoftheland/whispers/internal/story"
)

// downStories implements story.Repository with a datastore that cannot be reached.
type downStories struct {
	story.Repository
}

func (downStories) List(context.Context, story.ListFilter) (*story.ListResult, error) {
	return nil, errors.New("connection refused")
}

func newRouter(t *testing.T) (*chi.Mux, *sessiontest.Env) {
	t.Helper()
	env := sessiontest.New(t)
	env.Client.Stories = downStories{}

	r := api.NewRouter(api.RouterDeps{
		Backend:       env.Holder,
		Sessions:      env.Registry,
		Narration:     narration.NewClient(narration.Config{}),
		Buckets:       handler.Buckets{Audio: "audio", Illustrations: "illustrations"},
		Version:       "test",
		SettleTimeout: 2 * time.Second,
	})
	return r, env
}

func serve(r http.Handler, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func cookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRouter_PublicEndpoints(t *testing.T) {
	r, _ := newRouter(t)

	for _, path := range []string{"/health", "/catalog"} {
		w := serve(r, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Nil(t, cookie(w, middleware.ClientCookie), "%s is served without a session", path)
	}
}

func TestRouter_StoriesFallBackToSamples(t *testing.T) {
	r, _ := newRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/stories", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, cookie(w, middleware.ClientCookie))

	var env struct {
		Data []map[string]any `json:"data"`
		Meta map[string]any   `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Len(t, env.Data, story.Samples(story.ListFilter{}).Total)
	assert.Equal(t, true, env.Meta["fallback"])
	assert.NotEmpty(t, env.Meta["notice"])
}

func TestRouter_AdminRedirectsWhenSignedOut(t *testing.T) {
	r, _ := newRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/admin/stories", nil))

	require.Equal(t, http.StatusSeeOther, w.Code)
	location := w.Header().Get("Location")
	assert.Equal(t, "/auth/sign-in?from=%2Fadmin%2Fstories", location)

	client := cookie(w, middleware.ClientCookie)
	require.NotNil(t, client)
	signIn := serve(r, httptest.NewRequest(http.MethodGet, location, nil), client)

	require.Equal(t, http.StatusOK, signIn.Code, signIn.Body.String())
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(signIn.Body.Bytes(), &env))
	assert.Equal(t, false, env.Data["signedIn"])
	assert.Equal(t, "/admin/stories", env.Data["redirectTo"])
}

func TestRouter_SignInPageRejectsOffSiteReturn(t *testing.T) {
	r, _ := newRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/auth/sign-in?from=%2F%2Fevil.example", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "/", env.Data["redirectTo"])
}

func TestRouter_AnonymousTrafficHoldsNoSessions(t *testing.T) {
	r, env := newRouter(t)

	for i := 0; i < 50; i++ {
		for _, path := range []string{"/stories", "/narration/status", "/narration/voices", "/auth/session", "/auth/sign-in"} {
			serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		}
		serve(r, httptest.NewRequest(http.MethodGet, "/stories", nil),
			&http.Cookie{Name: middleware.SessionCookie, Value: "forged"})
	}
	assert.Equal(t, 0, env.Registry.Len())

	env.SignUp(t, "ama@example.com", "Ama")
	body := `{"email":"ama@example.com","password":"` + sessiontest.Password + `"}`
	w := serve(r, httptest.NewRequest(http.MethodPost, "/auth/sign-in", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, cookie(w, middleware.SessionCookie))
	assert.Equal(t, 1, env.Registry.Len(), "signing in creates the client's session")
}

func TestRouter_ModeratorReachesAdmin(t *testing.T) {
	// Arrange
	r, env := newRouter(t)
	env.Moderator(t, "mod@example.com")
	client := &http.Cookie{Name: middleware.ClientCookie, Value: uuid.NewString()}

	body := `{"email":"mod@example.com","password":"` + sessiontest.Password + `"}`
	signIn := serve(r, httptest.NewRequest(http.MethodPost, "/auth/sign-in?from=/admin/stories", strings.NewReader(body)), client)
	require.Equal(t, http.StatusOK, signIn.Code, signIn.Body.String())
	sess := cookie(signIn, middleware.SessionCookie)
	require.NotNil(t, sess)

	// Act
	w := serve(r, httptest.NewRequest(http.MethodGet, "/admin/stories", nil), client, sess)

	// Assert
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "the gate lets the moderator through to the datastore")
}

func TestRouter_RegularUserIsRedirectedFromAdmin(t *testing.T) {
	r, env := newRouter(t)
	sess := env.SignUp(t, "reader@example.com", "Reader")
	client := &http.Cookie{Name: middleware.ClientCookie, Value: uuid.NewString()}
	token := &http.Cookie{Name: middleware.SessionCookie, Value: sess.AccessToken}

	w := serve(r, httptest.NewRequest(http.MethodDelete, "/admin/stories/"+uuid.NewString(), nil), client, token)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/auth/sign-in?from="))
}
