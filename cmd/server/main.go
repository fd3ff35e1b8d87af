package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whispersoftheland/whispers/internal/api"
	"github.com/whispersoftheland/whispers/internal/api/handler"
	"github.com/whispersoftheland/whispers/internal/backend"
	"github.com/whispersoftheland/whispers/internal/config"
	"github.com/whispersoftheland/whispers/internal/database"
	"github.com/whispersoftheland/whispers/internal/kv"
	"github.com/whispersoftheland/whispers/internal/narration"
	"github.com/whispersoftheland/whispers/internal/profile"
	"github.com/whispersoftheland/whispers/internal/reconciler"
	"github.com/whispersoftheland/whispers/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.MigrateOnBoot {
		if err := migrate(ctx, cfg.DatabaseURL); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	kvStore, err := kv.New(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("redis unavailable; sign-in rate limits and token revocation are disabled", "error", err)
	}
	defer kvStore.Close()

	holder, err := backend.Open(ctx, backend.Dial(cfg, kvStore))
	if err != nil {
		slog.Error("failed to connect to backend", "error", err)
		os.Exit(1)
	}
	defer holder.Close()

	rec := reconciler.New(func() profile.Repository {
		return holder.Current().Profiles
	}, reconciler.Config{
		ProvisionDelay:  cfg.ProfileProvisionDelay,
		NotFoundRetries: cfg.ProfileNotFoundRetries,
		RetryInterval:   cfg.ProfileRetryInterval,
		Timeout:         cfg.ProfileTimeout,
	})

	sessions := session.NewRegistry(holder, rec, cfg.SessionIdleTTL, session.WithRefreshWindow(cfg.RefreshWindow))
	defer sessions.Close()
	holder.OnReplace(sessions.Rebind)
	go sessions.Start(ctx, cfg.SessionSweepInterval)

	tts := narration.NewClient(narration.Config{
		APIKey:   cfg.ElevenLabsAPIKey,
		VoiceID:  cfg.ElevenLabsVoiceID,
		Model:    cfg.ElevenLabsModel,
		BaseURL:  cfg.ElevenLabsBaseURL,
		RetryMax: 2,
	})
	if !tts.Configured() {
		slog.Warn("ELEVENLABS_API_KEY not set; narration endpoints will report not configured")
	}

	router := api.NewRouter(api.RouterDeps{
		Backend:   holder,
		Sessions:  sessions,
		Cache:     kvStore,
		Narration: tts,
		Buckets: handler.Buckets{
			Audio:         cfg.StorageAudioBucket,
			Illustrations: cfg.StorageIllustrationBucket,
		},
		Version:       cfg.Version,
		SettleTimeout: cfg.SettleTimeout,
		SecureCookies: cfg.CookieSecure,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting whispers server", "port", cfg.Port, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(logHandler))
}

func migrate(ctx context.Context, databaseURL string) error {
	db, err := database.New(ctx, databaseURL, database.WithApplicationName("whispers-migrate"))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	slog.Info("database schema applied")
	return nil
}
