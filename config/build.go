package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gannonmg/lockbox"
	"github.com/gannonmg/lockbox/backends"
	"github.com/gannonmg/lockbox/backends/middleware"
	"github.com/gannonmg/lockbox/internal/metrics"
	"github.com/gannonmg/lockbox/internal/observability"
	"github.com/gannonmg/lockbox/pkg/backend"
	"github.com/gannonmg/lockbox/pkg/notify"
)

// Open loads a configuration file and builds the store it describes.
//
// Example:
//
//	store, err := config.Open("lockbox.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func Open(path string) (*lockbox.Store, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	return Build(cfg)
}

// Build assembles a store from configuration. The backend comes from the
// registry and the enabled middleware is layered around it; when metrics
// are on, the store's change events also feed the event counters. Wrappers
// nest so that tracing sees every store call while cache hits skip the
// rate limiter, and backend metrics count only calls that truly reached
// the backend.
func Build(cfg *Config) (*lockbox.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	redactor := observability.NewRedactor()
	obs := buildLogger(cfg.Logging, redactor)
	logger := obs.Slog()

	b, err := backends.Create(backend.Config{
		Type:     cfg.Backend.Type,
		Address:  cfg.Backend.Address,
		Path:     cfg.Backend.Path,
		Prefix:   cfg.Backend.Prefix,
		Settings: cfg.Backend.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("create backend %q: %w", cfg.Backend.Type, err)
	}

	obs.RedactedDebug("backend configured",
		"type", cfg.Backend.Type,
		"address", cfg.Backend.Address,
		"settings", redactor.RedactSettings(cfg.Backend.Settings),
	)

	wrapped := b
	if cfg.Middleware.Metrics.Enabled {
		wrapped = middleware.NewInstrumented(wrapped, cfg.Backend.Type, logger)
	}
	if cfg.Middleware.RateLimit.Enabled {
		wrapped = middleware.NewRateLimited(wrapped, middleware.RateLimitConfig{
			OpsPerSecond: cfg.Middleware.RateLimit.OpsPerSecond,
			Burst:        cfg.Middleware.RateLimit.Burst,
			Wait:         cfg.Middleware.RateLimit.Wait,
		})
	}
	if cfg.Middleware.Cache.Enabled {
		wrapped = middleware.NewCached(wrapped, cfg.Backend.Type, middleware.CacheConfig{
			TTL:             cfg.Middleware.Cache.TTL,
			CleanupInterval: cfg.Middleware.Cache.CleanupInterval,
		})
	}
	if cfg.Tracing.Enabled {
		wrapped = middleware.NewTraced(wrapped, cfg.Backend.Type)
	}

	store, err := lockbox.New(wrapped,
		lockbox.WithNamespace(cfg.Store.Namespace),
		lockbox.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	if cfg.Middleware.Metrics.Enabled {
		store.Subscribe(func(ctx context.Context, ev notify.Event) {
			metrics.ObserveEvent(ev)
		})
	}

	return store, nil
}

// SetupTracing installs the global OpenTelemetry tracer provider described
// by the tracing section, exporting spans over OTLP/gRPC. The caller owns
// the returned shutdown function; call it on process exit to flush spans.
// When tracing is disabled the shutdown function is a no-op.
func SetupTracing(ctx context.Context, cfg *Config) (func(context.Context) error, error) {
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	return tp.Shutdown, nil
}

func buildLogger(cfg LoggingConfig, redactor *observability.Redactor) *observability.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		JSONFormat: cfg.Format != "text",
	}, redactor)
}
