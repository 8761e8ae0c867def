package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/akhtararif14-hash/campusly/internal/api"
	"github.com/akhtararif14-hash/campusly/internal/auth"
	"github.com/akhtararif14-hash/campusly/internal/config"
	"github.com/akhtararif14-hash/campusly/internal/hub"
	"github.com/akhtararif14-hash/campusly/internal/store"
)

const devJWTSecret = "campusly-dev-secret"

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	ctx := context.Background()

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	// Unread markers: Redis when configured, memory otherwise
	var redisStore *store.RedisStore
	var unread store.UnreadTracker = store.NewMemoryUnread()
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		unread = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set: unread markers are in memory and rate limiting is off")
	}

	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn().Msg("JWT_SECRET not set: using the development secret")
		secret = devJWTSecret
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()

	events := hub.New(hub.Config{
		Messages:       db,
		Unread:         unread,
		Logger:         logger.With().Str("component", "hub").Logger(),
		AllowedOrigins: cfg.AllowedOrigins,
	})
	go events.Run(hubCtx)

	// WriteTimeout stays zero: websocket connections manage their own deadlines.
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.Deps{
			Config:   cfg,
			Logger:   logger,
			DB:       db,
			Unread:   unread,
			Redis:    redisStore,
			Hub:      events,
			Verifier: auth.NewVerifier(secret),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting Campusly chat server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info().Msg("shutting down server...")

	// Hijacked websocket connections are not tracked by Shutdown; stopping
	// the hub closes them.
	stopHub()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openStore connects to Postgres, migrating it first, or falls back to SQLite.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.DataStore, error) {
	if cfg.DatabaseURL == "" {
		db, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
		return db, nil
	}

	logger.Info().Msg("running database migrations...")
	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, err
	}

	db, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to PostgreSQL")
	return db, nil
}
