package tide

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/coastal-conditions/internal/cache"
	"github.com/i474232898/coastal-conditions/internal/geo"
	"github.com/i474232898/coastal-conditions/internal/station"
)

var (
	// ErrNoUsableStation is returned when the nearest station is too far away.
	ErrNoUsableStation = errors.New("no tide station within range")
	// ErrNoPredictions is returned when a station reports an empty series.
	ErrNoPredictions = errors.New("no tide predictions")
	// ErrNoTarget is returned when a refresh names neither a station nor a coordinate.
	ErrNoTarget = errors.New("station id or coordinate required")
)

// Target selects the station to refresh: StationID when set, otherwise the
// station nearest to Coordinate.
type Target struct {
	StationID  string
	Coordinate *geo.Coordinate
}

// Service serves tide readings keyed by station id.
type Service struct {
	resolver *station.Resolver
	source   Source
	cache    *cache.Orchestrator[Reading]
	now      func() time.Time
	logger   *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the clock used to classify series.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new Service.
func NewService(resolver *station.Resolver, source Source, orchestrator *cache.Orchestrator[Reading], logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		resolver: resolver,
		source:   source,
		cache:    orchestrator,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Nearest resolves the station closest to c. The resolved station is
// returned together with ErrNoUsableStation when it is out of range.
func (s *Service) Nearest(ctx context.Context, c geo.Coordinate) (station.Resolved, error) {
	resolved, err := s.resolver.Nearest(ctx, c)
	if err != nil {
		return station.Resolved{}, err
	}
	if !resolved.Usable() {
		return resolved, fmt.Errorf("%w: nearest is %s at %.1f km", ErrNoUsableStation, resolved.ID, resolved.DistanceKm)
	}
	return resolved, nil
}

// LatestForStation returns the cached reading for stationID, refreshing it
// when stale.
func (s *Service) LatestForStation(ctx context.Context, stationID string) (cache.Record[Reading], error) {
	return s.cache.Get(ctx, stationID, s.pipeline(station.Station{ID: stationID}))
}

// LatestAt resolves the station nearest to c and returns its reading.
// Resolution failures are reported as cache.ErrNoData.
func (s *Service) LatestAt(ctx context.Context, c geo.Coordinate) (station.Resolved, cache.Record[Reading], error) {
	resolved, err := s.Nearest(ctx, c)
	if err != nil {
		s.logger.Info("no usable tide station", zap.Stringer("location", c), zap.Error(err))
		return resolved, cache.Record[Reading]{}, fmt.Errorf("%w: %w", cache.ErrNoData, err)
	}

	rec, err := s.cache.Get(ctx, resolved.ID, s.pipeline(resolved.Station))
	return resolved, rec, err
}

// Refresh fetches and stores a new reading for the target station.
func (s *Service) Refresh(ctx context.Context, target Target) (cache.Record[Reading], error) {
	st := station.Station{ID: target.StationID}
	if st.ID == "" {
		if target.Coordinate == nil {
			return cache.Record[Reading]{}, ErrNoTarget
		}
		resolved, err := s.Nearest(ctx, *target.Coordinate)
		if err != nil {
			return cache.Record[Reading]{}, err
		}
		st = resolved.Station
	}

	return s.cache.Refresh(ctx, st.ID, s.pipeline(st))
}

// All returns the latest reading of every station in the cache.
func (s *Service) All(ctx context.Context) []cache.Record[Reading] {
	return s.cache.All(ctx)
}

// pipeline fetches predictions and extremes for st concurrently and derives
// the reading. A failed extremes fetch only leaves the extremes empty.
func (s *Service) pipeline(st station.Station) cache.FetchFunc[Reading] {
	return func(ctx context.Context) (Reading, error) {
		var predictions, hilo Series

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			series, err := s.source.Predictions(gctx, st.ID)
			if err != nil {
				return fmt.Errorf("fetch predictions for %s: %w", st.ID, err)
			}
			predictions = series
			return nil
		})
		g.Go(func() error {
			series, err := s.source.Extremes(gctx, st.ID)
			if err != nil {
				s.logger.Warn("tide extremes unavailable", zap.String("station", st.ID), zap.Error(err))
				return nil
			}
			hilo = series
			return nil
		})
		if err := g.Wait(); err != nil {
			return Reading{}, err
		}

		if len(predictions) == 0 {
			return Reading{}, fmt.Errorf("%w: station %s", ErrNoPredictions, st.ID)
		}

		now := s.now()
		current, _ := Current(predictions, now)

		return Reading{
			StationID:   st.ID,
			StationName: st.Name,
			Height:      current.Value,
			Status:      Classify(predictions, now),
			Extremes:    SplitExtremes(hilo),
		}, nil
	}
}
