package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/david/tender-finder/internal/api"
	"github.com/david/tender-finder/internal/app"
	"github.com/david/tender-finder/internal/config"
	"github.com/david/tender-finder/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("TENDERS_CONFIG"))
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := buildServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("server setup failed")
	}
	defer cleanup()

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Int("sources", len(srv.Registry.Sources)).Msg("server starting")
		if err := srv.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}

// buildServer wires the registry, pipeline and optional store into the API.
// Without a database the server still scrapes on demand; ingest routes answer 503.
func buildServer(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*api.Server, func(), error) {
	reg, err := app.LoadRegistry(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("registry load failed: %w", err)
	}

	cleanup := func() {}
	var store api.Store
	if cfg.DatabaseURL != "" {
		s, closeStore, err := app.OpenStore(ctx, cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		cleanup = closeStore
		store = s
	} else {
		logger.Warn().Msg("no database_url configured; storage routes disabled")
	}

	srv := api.NewServer(reg, app.NewPipeline(cfg, logger), store, logging.ForComponent(logger, "api"), api.Options{
		AdminSecret: cfg.AdminSecret,
		CORSOrigins: strings.Split(cfg.CORSOrigins, ","),
	})
	return srv, cleanup, nil
}
