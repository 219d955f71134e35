package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

const (
	poolCachePrefix     = "quizpool:"
	poolGenerationKey   = poolCachePrefix + "generation"
	poolGenerationCheck = 5 * time.Second
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Counter(ctx context.Context, key string) (int64, error)
	Bump(ctx context.Context, key string) (int64, error)
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService records hit ratios around a CacheRepository and degrades to misses on failure.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get reports whether key was found and decoded into dest.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores value under key, using the default TTL when ttl <= 0.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Generation reads a namespace counter, zero when caching is off.
func (s *CacheService) Generation(ctx context.Context, key string) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	return s.repo.Counter(ctx, key)
}

// Rotate advances a namespace counter so keys derived from the old value are no longer read.
// When the counter cannot be advanced the namespace is deleted outright.
func (s *CacheService) Rotate(ctx context.Context, counterKey, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.repo.Bump(ctx, counterKey)
	if err == nil {
		return nil
	}
	s.logger.Warn("cache rotate failed, deleting namespace", zap.String("counter", counterKey), zap.Error(err))
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// PoolLoader reads a quiz pool from the primary store.
type PoolLoader interface {
	PoolTasks(ctx context.Context, assignmentID int64) ([]models.PoolTask, error)
}

// QuizPool serves quiz pools through the cache. A pool is immutable once its assignment is created,
// but instructor edit overlays change the tasks it joins, so every edit rotates the pool generation.
type QuizPool struct {
	loader PoolLoader
	cache  *CacheService
}

// NewQuizPool wires a pool loader with an optional cache.
func NewQuizPool(loader PoolLoader, cache *CacheService) *QuizPool {
	return &QuizPool{loader: loader, cache: cache}
}

// Tasks returns the pool of an assignment.
func (p *QuizPool) Tasks(ctx context.Context, assignmentID int64) ([]models.PoolTask, error) {
	genCtx, cancel := context.WithTimeout(ctx, poolGenerationCheck)
	gen, err := p.cache.Generation(genCtx, poolGenerationKey)
	cancel()
	if err != nil {
		return p.loader.PoolTasks(ctx, assignmentID)
	}

	key := fmt.Sprintf("%s%d:%d", poolCachePrefix, gen, assignmentID)
	var cached []models.PoolTask
	if hit, err := p.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	pool, err := p.loader.PoolTasks(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	_ = p.cache.Set(ctx, key, pool, 0)
	return pool, nil
}

// InvalidateAll makes every cached pool stale.
func (p *QuizPool) InvalidateAll(ctx context.Context) {
	_ = p.cache.Rotate(ctx, poolGenerationKey, poolCachePrefix+"*")
}
