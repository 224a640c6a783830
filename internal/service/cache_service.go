package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheMetrics interface {
	CacheHit()
	CacheMiss()
}

// CacheService wraps the Redis-backed cache with an enabled switch and
// hit/miss accounting. Cache failures degrade to the underlying source,
// never to an error for the caller.
type CacheService struct {
	store   cacheStore
	metrics cacheMetrics
	enabled bool
	logger  *zap.Logger
}

// NewCacheService constructs the cache layer.
func NewCacheService(store cacheStore, metrics cacheMetrics, enabled bool, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{store: store, metrics: metrics, enabled: enabled && store != nil, logger: logger}
}

// Enabled reports whether caching is active.
func (s *CacheService) Enabled() bool { return s.enabled }

// Get loads a cached value. Returns false on miss or any cache failure.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.enabled {
		return false
	}
	if err := s.store.Get(ctx, key, dest); err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.CacheMiss()
		}
		return false
	}
	if s.metrics != nil {
		s.metrics.CacheHit()
	}
	return true
}

// Set stores a value with the given TTL, best-effort.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.enabled {
		return
	}
	if err := s.store.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops a single key, best-effort.
func (s *CacheService) Invalidate(ctx context.Context, key string) {
	if !s.enabled {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidatePattern drops every key matching the pattern, best-effort.
func (s *CacheService) InvalidatePattern(ctx context.Context, pattern string) {
	if !s.enabled {
		return
	}
	if err := s.store.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate pattern failed", zap.String("pattern", pattern), zap.Error(err))
	}
}
