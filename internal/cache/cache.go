// Package cache stores computed responses for a short time so repeated
// requests do not recompute predictions or refetch upstream data.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lox/pmforecast/internal/metrics"
)

// ErrMiss is returned by GetJSON when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Service interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Backend() string
	Close() error
}

// GetJSON decodes the cached value for key into dest.
func GetJSON(ctx context.Context, c Service, key string, dest any) error {
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		metrics.CacheRequests.WithLabelValues(c.Backend(), "error").Inc()
		return err
	}
	if !ok {
		metrics.CacheRequests.WithLabelValues(c.Backend(), "miss").Inc()
		return ErrMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		metrics.CacheRequests.WithLabelValues(c.Backend(), "error").Inc()
		return err
	}
	metrics.CacheRequests.WithLabelValues(c.Backend(), "hit").Inc()
	return nil
}

// SetJSON encodes value and stores it under key.
func SetJSON(ctx context.Context, c Service, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}

// New connects to redis when addr is set and falls back to an in-process
// cache when it is empty or unreachable.
func New(ctx context.Context, cfg RedisConfig) Service {
	if cfg.Addr == "" {
		return NewMemory()
	}
	rc, err := NewRedis(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("cache: redis unavailable, using memory cache")
		return NewMemory()
	}
	log.Info().Str("addr", cfg.Addr).Msg("cache: using redis")
	return rc
}
