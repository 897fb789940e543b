package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/umbusk1/bibliofep/pkg/metrics"
	pkgredis "github.com/umbusk1/bibliofep/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix = "stats:"

	// sharedComputeTimeout bounds a computation that outlives the request
	// that started it.
	sharedComputeTimeout = time.Minute
)

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Cache stores computed Stats per filter and collapses concurrent misses for
// the same filter into one computation.
type Cache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCache creates a cache. m may be nil.
func NewCache(backend Backend, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		backend: backend,
		ttl:     ttl,
		timeout: sharedComputeTimeout,
		metrics: m,
		logger:  slog.Default().With("component", "stats-cache"),
	}
}

func (c *Cache) get(ctx context.Context, key string) (*Stats, bool) {
	data, err := c.backend.GetBytes(ctx, key)
	if err != nil {
		// Redis nil is the ordinary miss; anything else is logged and
		// treated as one.
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var s Stats
	if err := json.Unmarshal(data, &s); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &s, true
}

func (c *Cache) set(ctx context.Context, key string, s *Stats) {
	data, err := json.Marshal(s)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached stats for f or computes and stores them. The
// boolean reports a cache hit. Concurrent misses for one filter share a
// computation that is detached from any single caller's cancellation; each
// caller still stops waiting when its own ctx ends.
func (c *Cache) GetOrCompute(ctx context.Context, f Filter, compute func(context.Context, Filter) (*Stats, error)) (*Stats, bool, error) {
	key := keyPrefix + f.Key()
	if s, ok := c.get(ctx, key); ok {
		c.count(true)
		return s, true, nil
	}
	c.count(false)

	ch := c.group.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		if s, ok := c.get(sctx, key); ok {
			return s, nil
		}
		s, err := compute(sctx, f)
		if err != nil {
			return nil, err
		}
		c.set(sctx, key, s)
		return s, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*Stats), false, nil
	}
}

// Invalidate drops every cached stats entry.
func (c *Cache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating stats cache: %w", err)
	}
	c.logger.Info("stats cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *Cache) count(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.StatsCacheHitsTotal.Inc()
	} else {
		c.metrics.StatsCacheMissesTotal.Inc()
	}
}
