package stats

import (
	"context"
)

// Computer produces fresh stats for a filter.
type Computer interface {
	Compute(ctx context.Context, f Filter) (*Stats, error)
}

// Service serves stats through the cache when one is configured.
type Service struct {
	store Computer
	cache *Cache
}

// NewService creates a Service. cache may be nil, in which case every call
// is computed.
func NewService(store Computer, cache *Cache) *Service {
	return &Service{store: store, cache: cache}
}

// Get returns stats for f and whether they came from the cache.
func (s *Service) Get(ctx context.Context, f Filter) (*Stats, bool, error) {
	if s.cache == nil {
		st, err := s.store.Compute(ctx, f)
		return st, false, err
	}
	return s.cache.GetOrCompute(ctx, f, s.store.Compute)
}

// Invalidate clears cached stats. It is a no-op without a cache.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}
