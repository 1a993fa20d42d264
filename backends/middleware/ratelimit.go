package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/gannonmg/lockbox/pkg/backend"
)

// RateLimited throttles backend calls with a token bucket, protecting
// remote stores from hot loops and API rate limits.
type RateLimited struct {
	next    backend.Backend
	limiter *rate.Limiter
	wait    bool
}

// RateLimitConfig holds configuration for the rate limiting middleware.
type RateLimitConfig struct {
	OpsPerSecond float64 `yaml:"ops_per_second"`
	Burst        int     `yaml:"burst"`
	Wait         bool    `yaml:"wait"` // block until a token is free instead of failing
}

// DefaultRateLimitConfig returns sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		OpsPerSecond: 50,
		Burst:        10,
		Wait:         true,
	}
}

// NewRateLimited wraps next with a token bucket limiter.
func NewRateLimited(next backend.Backend, cfg RateLimitConfig) *RateLimited {
	if cfg.OpsPerSecond <= 0 {
		cfg.OpsPerSecond = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.OpsPerSecond), cfg.Burst),
		wait:    cfg.Wait,
	}
}

// acquire takes one token, either blocking or failing depending on
// configuration. A rejected call reports the backend as unavailable.
func (r *RateLimited) acquire(ctx context.Context) error {
	if r.wait {
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
		return nil
	}
	if !r.limiter.Allow() {
		return fmt.Errorf("rate limit exceeded: %w", backend.ErrUnavailable)
	}
	return nil
}

// Put delegates after acquiring a token.
func (r *RateLimited) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	return r.next.Put(ctx, namespace, key, value)
}

// Get delegates after acquiring a token.
func (r *RateLimited) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	return r.next.Get(ctx, namespace, key)
}

// Delete delegates after acquiring a token.
func (r *RateLimited) Delete(ctx context.Context, namespace, key string) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	return r.next.Delete(ctx, namespace, key)
}

// Clear delegates after acquiring a token. A sweep counts as one operation
// regardless of how many classes it covers.
func (r *RateLimited) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	return r.next.Clear(ctx, namespace, classes)
}
