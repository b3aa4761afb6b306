// Package app wires configuration into the pipeline, registry and store
// shared by the CLI and the server.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/david/tender-finder/internal/config"
	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/ingest"
	"github.com/david/tender-finder/internal/logging"
)

// NewPipeline builds a pipeline with both fetch engines configured from cfg.
func NewPipeline(cfg config.Config, logger zerolog.Logger) *ingest.Pipeline {
	fetcher := ingest.NewHTTPFetcher(ingest.HTTPFetcherConfig{
		BlockPrivateNetworks: cfg.BlockPrivateNetworks,
		UserAgent:            cfg.UserAgent,
	})

	colly := ingest.NewCollyFetcher(cfg.BlockPrivateNetworks)
	if cfg.UserAgent != "" {
		colly.UserAgent = cfg.UserAgent
	}

	p := ingest.NewPipeline(fetcher, logging.ForComponent(logger, "pipeline"))
	p.CollyFetcher = colly
	p.DocumentBatch = cfg.DocumentBatchSize
	p.SourceParallelism = cfg.SourceParallelism
	p.DefaultTimeout = cfg.FetchTimeout()
	return p
}

// LoadRegistry reads the configured registry, or the embedded one.
func LoadRegistry(cfg config.Config) (*ingest.Registry, error) {
	reg, err := ingest.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load source registry: %w", err)
	}
	return reg, nil
}

// OpenStore connects, migrates and returns the store with its close func.
func OpenStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*db.Store, func(), error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.ApplyMigrations(ctx, pool, logging.ForComponent(logger, "db")); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}
	return db.NewStore(pool), pool.Close, nil
}

// SelectSources resolves ids in registry order; all selects every source.
func SelectSources(reg *ingest.Registry, ids []string, all bool) ([]ingest.SourceConfig, error) {
	if all {
		out := make([]ingest.SourceConfig, 0, len(reg.Sources))
		for _, id := range reg.IDs() {
			cfg, _ := reg.Lookup(id)
			out = append(out, cfg)
		}
		return out, nil
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no source selected")
	}

	seen := make(map[string]bool, len(ids))
	out := make([]ingest.SourceConfig, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		cfg, err := reg.Lookup(id)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}
