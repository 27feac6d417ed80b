package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/conduit/pkg/clients"
	"github.com/ajitpratap0/conduit/pkg/config"
	"github.com/ajitpratap0/conduit/pkg/logger"
	"github.com/ajitpratap0/conduit/pkg/observability"
)

// loadConfig reads the optional config file, then applies CONDUIT_*
// overrides and validates the result
func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds the process-wide components every command needs
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	http    *clients.HTTPClient
	fetcher *clients.SchemeFetcher
	closers []func() error
}

func setup(ctx context.Context, cfg *config.Config, component string) (*app, error) {
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.With(zap.String("component", component), zap.String("name", cfg.Name))

	if err := observability.Init(ctx, cfg.Tracing); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	rt := &app{cfg: cfg, log: log}

	httpClient := clients.NewHTTPClient(&cfg.HTTP, log)
	rt.http = httpClient
	rt.closers = append(rt.closers, httpClient.Close)
	rt.fetcher = clients.NewSchemeFetcher(httpClient)

	// Object store schemes are optional; missing credentials only disable them
	if s3f, err := clients.NewS3Fetcher(ctx, ""); err != nil {
		log.Warn("s3 fetcher disabled", zap.Error(err))
	} else {
		rt.fetcher.Register("s3", s3f)
	}
	if gcs, err := clients.NewGCSFetcher(ctx); err != nil {
		log.Warn("gcs fetcher disabled", zap.Error(err))
	} else {
		rt.fetcher.Register("gs", gcs)
		rt.closers = append(rt.closers, gcs.Close)
	}

	return rt, nil
}

func (rt *app) close(ctx context.Context) {
	for _, c := range rt.closers {
		if err := c(); err != nil {
			rt.log.Warn("failed to close client", zap.Error(err))
		}
	}
	if err := observability.Shutdown(ctx); err != nil {
		rt.log.Warn("failed to shut down tracing", zap.Error(err))
	}
	_ = logger.Sync()
}
