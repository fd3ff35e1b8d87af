package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/whispersoftheland/whispers/internal/api/middleware"
	"github.com/whispersoftheland/whispers/internal/api/response"
	"github.com/whispersoftheland/whispers/internal/backend"
)

// BackendStatus reports on the replaceable backend connection.
type BackendStatus interface {
	Current() *backend.Client
	Generation() uint64
	Busy() bool
}

// CacheChecker reports on the optional key/value store.
type CacheChecker interface {
	Available() bool
	Ping(ctx context.Context) error
}

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	backend             BackendStatus
	cache               CacheChecker
	narrationConfigured bool
	version             string
}

// NewHealthHandler creates a new HealthHandler. cache may be nil.
func NewHealthHandler(b BackendStatus, cache CacheChecker, narrationConfigured bool, version string) *HealthHandler {
	return &HealthHandler{
		backend:             b,
		cache:               cache,
		narrationConfigured: narrationConfigured,
		version:             version,
	}
}

type backendHealth struct {
	Connected    bool   `json:"connected"`
	Generation   uint64 `json:"generation"`
	Reconnecting bool   `json:"reconnecting"`
}

type cacheHealth struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

type narrationHealth struct {
	Configured bool `json:"configured"`
}

type healthData struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Backend   backendHealth   `json:"backend"`
	Cache     cacheHealth     `json:"cache"`
	Narration narrationHealth `json:"narration"`
}

// ServeHTTP handles the health check request. A degraded dependency is
// reported in the body; the status code stays 200.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	data := healthData{
		Status:  "healthy",
		Version: h.version,
		Backend: backendHealth{
			Generation:   h.backend.Generation(),
			Reconnecting: h.backend.Busy(),
		},
		Narration: narrationHealth{Configured: h.narrationConfigured},
	}

	if err := h.backend.Current().Ping(ctx); err != nil {
		slog.Warn("backend ping failed", "error", err, "requestId", requestID)
		data.Status = "degraded"
	} else {
		data.Backend.Connected = true
	}

	if h.cache != nil && h.cache.Available() {
		data.Cache.Enabled = true
		if err := h.cache.Ping(ctx); err != nil {
			slog.Warn("cache ping failed", "error", err, "requestId", requestID)
			data.Status = "degraded"
		} else {
			data.Cache.Connected = true
		}
	}

	response.Success(w, http.StatusOK, data, requestID)
}
