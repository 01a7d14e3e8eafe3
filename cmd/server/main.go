package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nzvengeance/flight-logbook/internal/api"
	"github.com/nzvengeance/flight-logbook/internal/config"
	"github.com/nzvengeance/flight-logbook/internal/database"
	"github.com/nzvengeance/flight-logbook/internal/prefs"
	syncsvc "github.com/nzvengeance/flight-logbook/internal/sync"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("Flight Logbook starting up")
	if cfg.AuthDisabled {
		log.Warn().Str("user", cfg.DevUserKey).Msg("authentication disabled, all requests run as the dev user")
	}

	// Connect database
	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	prefStore, closePrefs := openPrefs(cfg, db)
	defer closePrefs()

	// Create import scheduler
	importer := syncsvc.NewImporter(db, cfg.ProgressEvery)
	scheduler := syncsvc.NewScheduler(db, importer, cfg)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer scheduler.Stop()

	// Create API server
	srv := api.NewServer(db, cfg, scheduler, prefStore)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Info().Str("port", cfg.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("Flight Logbook stopped")
}

// openPrefs picks the preferences backend. Redis falls back to the database
// when it cannot be reached at startup.
func openPrefs(cfg *config.Config, db *database.DB) (prefs.Store, func()) {
	if cfg.PrefsBackend != "redis" {
		return prefs.NewDBStore(db), func() {}
	}

	rs := prefs.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		log.Error().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, storing preferences in the database")
		_ = rs.Close()
		return prefs.NewDBStore(db), func() {}
	}

	log.Info().Str("addr", cfg.RedisAddr).Msg("preferences stored in redis")
	return rs, func() { _ = rs.Close() }
}
