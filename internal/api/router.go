package api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/whispersoftheland/whispers/internal/api/handler"
	"github.com/whispersoftheland/whispers/internal/api/middleware"
	"github.com/whispersoftheland/whispers/internal/backend"
)

// Backend is the replaceable backend connection as seen by the router.
type Backend interface {
	Current() *backend.Client
	Generation() uint64
	Busy() bool
	Reconnect(ctx context.Context) (bool, error)
}

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Backend       Backend
	Sessions      middleware.StoreSource
	Cache         handler.CacheChecker
	Narration     handler.Synthesizer
	Buckets       handler.Buckets
	Version       string
	SettleTimeout time.Duration
	SecureCookies bool
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)

	healthHandler := handler.NewHealthHandler(deps.Backend, deps.Cache, deps.Narration.Configured(), deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)
	r.Get("/catalog", handler.Catalog)

	storyHandler := handler.NewStoryHandler(deps.Backend, deps.Buckets, deps.SettleTimeout)
	authHandler := handler.NewAuthHandler(deps.Backend, deps.SettleTimeout, deps.SecureCookies)
	moderationHandler := handler.NewModerationHandler(deps.Backend)
	narrationHandler := handler.NewNarrationHandler(deps.Narration, deps.Backend, deps.Buckets.Audio)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(deps.Sessions, deps.SecureCookies))

		r.Route("/stories", func(r chi.Router) {
			r.Get("/", storyHandler.List)
			r.Post("/", storyHandler.Submit)
			r.Get("/{id}", storyHandler.GetByID)
		})

		r.Get("/narration/status", narrationHandler.Status)
		r.Get("/narration/voices", narrationHandler.Voices)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/session", authHandler.Session)
			r.Get("/sign-in", authHandler.SignInPage)
			r.Post("/sign-in", authHandler.SignIn)
			r.Post("/sign-up", authHandler.SignUp)
			r.Post("/sign-out", authHandler.SignOut)
			r.Post("/reconnect", authHandler.Reconnect)
		})

		r.With(middleware.Protect(false, deps.SettleTimeout)).Patch("/profile", authHandler.UpdateProfile)

		r.Route("/admin/stories", func(r chi.Router) {
			r.Use(middleware.Protect(true, deps.SettleTimeout))
			r.Get("/", moderationHandler.ListPending)
			r.Get("/{id}", moderationHandler.Get)
			r.Post("/{id}/approve", moderationHandler.Approve)
			r.Delete("/{id}", moderationHandler.Reject)
			r.Post("/{id}/narration", narrationHandler.Generate)
		})
	})

	return r
}
