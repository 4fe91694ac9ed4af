package weather

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/coastal-conditions/internal/cache"
	"github.com/i474232898/coastal-conditions/internal/geo"
	"github.com/i474232898/coastal-conditions/internal/upstream"
)

// ErrNoProviders is returned by a refresh when no provider is configured.
var ErrNoProviders = errors.New("no weather providers configured")

// Service serves current weather conditions keyed by location.
type Service struct {
	providers []Provider
	cache     *cache.Orchestrator[Conditions]
	keyer     geo.Keyer
	logger    *zap.Logger
}

// NewService creates a new Service.
func NewService(providers []Provider, orchestrator *cache.Orchestrator[Conditions], keyer geo.Keyer, logger *zap.Logger) *Service {
	return &Service{
		providers: providers,
		cache:     orchestrator,
		keyer:     keyer,
		logger:    logger,
	}
}

// Key returns the cache key used for c.
func (s *Service) Key(c geo.Coordinate) string {
	return s.keyer.Key(c)
}

// GetLatest returns the cached conditions at c, refreshing them when stale.
func (s *Service) GetLatest(ctx context.Context, c geo.Coordinate) (cache.Record[Conditions], error) {
	if err := c.Validate(); err != nil {
		return cache.Record[Conditions]{}, err
	}
	return s.cache.Get(ctx, s.Key(c), s.fetch(c))
}

// Refresh fetches and stores new conditions for c regardless of age.
func (s *Service) Refresh(ctx context.Context, c geo.Coordinate) (cache.Record[Conditions], error) {
	if err := c.Validate(); err != nil {
		return cache.Record[Conditions]{}, err
	}
	return s.cache.Refresh(ctx, s.Key(c), s.fetch(c))
}

// Record stores caller supplied conditions as the newest record of their location.
func (s *Service) Record(ctx context.Context, cond Conditions) (cache.Record[Conditions], error) {
	if err := cond.Location.Validate(); err != nil {
		return cache.Record[Conditions]{}, err
	}
	cond.Providers = nil
	return s.cache.Put(ctx, s.Key(cond.Location), cond)
}

// All returns the latest conditions of every cached location.
func (s *Service) All(ctx context.Context) []cache.Record[Conditions] {
	return s.cache.All(ctx)
}

// fetch queries all providers concurrently for c and averages the successful
// readings. It fails only when every provider fails.
func (s *Service) fetch(c geo.Coordinate) cache.FetchFunc[Conditions] {
	return func(ctx context.Context) (Conditions, error) {
		if len(s.providers) == 0 {
			return Conditions{}, ErrNoProviders
		}

		var (
			g        errgroup.Group
			mu       sync.Mutex
			readings []ProviderReading
			errs     []error
		)

		for _, p := range s.providers {
			p := p
			g.Go(func() error {
				r, err := p.Current(ctx, c)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					// Partial success is still a reading.
					s.logger.Warn("provider fetch failed",
						zap.String("provider", p.Name()),
						zap.Stringer("location", c),
						zap.Error(err))
					errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
					return nil
				}
				readings = append(readings, r)
				return nil
			})
		}
		_ = g.Wait()

		if len(readings) == 0 {
			return Conditions{}, fmt.Errorf("%w: all weather providers failed: %w", upstream.ErrUnavailable, errors.Join(errs...))
		}
		return AggregateReadings(c, readings), nil
	}
}
