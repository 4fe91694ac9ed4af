package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/coastal-conditions/internal/metrics"
)

// FetchFunc produces a new payload for a key. It is the refresh pipeline.
type FetchFunc[P any] func(ctx context.Context) (P, error)

// Options configures an Orchestrator.
type Options struct {
	// Name labels logs and metrics, e.g. "tide" or "weather".
	Name string
	// TTL is the freshness window. A record older than TTL triggers a refresh on read.
	TTL time.Duration
	// RefreshTimeout bounds a whole refresh pipeline. Zero means no extra deadline.
	RefreshTimeout time.Duration
	// Horizon is the retention horizon; defaults to RetentionHorizon.
	Horizon time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Orchestrator serves reads from a Store and refreshes stale keys through a
// FetchFunc. All work for one key is serialized.
type Orchestrator[P any] struct {
	store   Store[P]
	owners  *Owners
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewOrchestrator creates an Orchestrator over store.
func NewOrchestrator[P any](store Store[P], opts Options, logger *zap.Logger, m *metrics.Metrics) *Orchestrator[P] {
	if opts.Horizon <= 0 {
		opts.Horizon = RetentionHorizon
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator[P]{
		store:   store,
		owners:  NewOwners(),
		opts:    opts,
		logger:  logger.With(zap.String("cache", opts.Name)),
		metrics: m,
	}
}

// TTL returns the configured freshness window.
func (o *Orchestrator[P]) TTL() time.Duration {
	return o.opts.TTL
}

// Get returns the latest record for key, refreshing it first when it is
// missing or older than the TTL. If the refresh fails the previous record is
// returned when there is one; otherwise the error wraps ErrNoData.
func (o *Orchestrator[P]) Get(ctx context.Context, key string, fetch FetchFunc[P]) (Record[P], error) {
	release, err := o.owners.Acquire(ctx, key)
	if err != nil {
		return Record[P]{}, fmt.Errorf("%w: %w", ErrNoData, err)
	}
	defer release()

	now := o.opts.Clock()
	prior, found := o.latest(ctx, key, now)
	if found && prior.Age(now) <= o.opts.TTL {
		o.metrics.Hit(o.opts.Name)
		return prior, nil
	}
	o.metrics.Miss(o.opts.Name)

	rec, err := o.refresh(ctx, key, fetch)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, ErrPersistFailed):
		// The fetched payload is still good; it just could not be kept.
		o.logger.Warn("serving unpersisted refresh", zap.String("key", key), zap.Error(err))
		return rec, nil
	case found:
		o.logger.Warn("refresh failed, serving previous record",
			zap.String("key", key),
			zap.Duration("age", prior.Age(now)),
			zap.Error(err))
		return prior, nil
	default:
		return Record[P]{}, fmt.Errorf("%w: %w", ErrNoData, err)
	}
}

// Refresh runs the pipeline for key unconditionally and stores the result.
// Pipeline failures are returned as-is; storage failures wrap ErrPersistFailed.
// The cache is left unchanged on any failure.
func (o *Orchestrator[P]) Refresh(ctx context.Context, key string, fetch FetchFunc[P]) (Record[P], error) {
	release, err := o.owners.Acquire(ctx, key)
	if err != nil {
		return Record[P]{}, err
	}
	defer release()

	return o.refresh(ctx, key, fetch)
}

// Put stores payload for key as the newest record.
func (o *Orchestrator[P]) Put(ctx context.Context, key string, payload P) (Record[P], error) {
	release, err := o.owners.Acquire(ctx, key)
	if err != nil {
		return Record[P]{}, err
	}
	defer release()

	return o.persist(ctx, key, payload)
}

// Peek returns the latest record for key without refreshing. Records past
// the retention horizon and storage faults both read as ErrNotFound.
func (o *Orchestrator[P]) Peek(ctx context.Context, key string) (Record[P], error) {
	rec, found := o.latest(ctx, key, o.opts.Clock())
	if !found {
		return Record[P]{}, ErrNotFound
	}
	return rec, nil
}

// All returns the latest record of every key still within the retention
// horizon. A storage fault yields an empty list.
func (o *Orchestrator[P]) All(ctx context.Context) []Record[P] {
	recs, err := o.store.LatestAll(ctx)
	if err != nil {
		o.metrics.StorageFault(o.opts.Name, "latest_all")
		o.logger.Warn("listing latest records failed", zap.Error(err))
		return []Record[P]{}
	}

	now := o.opts.Clock()
	out := make([]Record[P], 0, len(recs))
	for _, rec := range recs {
		if rec.Age(now) > o.opts.Horizon {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (o *Orchestrator[P]) latest(ctx context.Context, key string, now time.Time) (Record[P], bool) {
	rec, err := o.store.Latest(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			o.metrics.StorageFault(o.opts.Name, "latest")
			o.logger.Warn("reading cached record failed", zap.String("key", key), zap.Error(err))
		}
		return Record[P]{}, false
	}
	if rec.Age(now) > o.opts.Horizon {
		return Record[P]{}, false
	}
	return rec, true
}

func (o *Orchestrator[P]) refresh(ctx context.Context, key string, fetch FetchFunc[P]) (Record[P], error) {
	logger := o.logger.With(zap.String("key", key), zap.String("refresh_id", uuid.NewString()))
	start := time.Now()

	fetchCtx := ctx
	if o.opts.RefreshTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, o.opts.RefreshTimeout)
		defer cancel()
	}

	payload, err := fetch(fetchCtx)
	if err != nil {
		o.metrics.Refresh(o.opts.Name, "fetch_failed", time.Since(start))
		logger.Warn("refresh pipeline failed", zap.Error(err))
		return Record[P]{}, err
	}

	rec, err := o.persist(ctx, key, payload)
	if err != nil {
		o.metrics.Refresh(o.opts.Name, "persist_failed", time.Since(start))
		logger.Error("refresh could not be stored", zap.Error(err))
		return rec, err
	}

	o.metrics.Refresh(o.opts.Name, "ok", time.Since(start))
	logger.Debug("refreshed", zap.Duration("took", time.Since(start)))
	return rec, nil
}

// persist appends a record and then evicts everything past the horizon.
func (o *Orchestrator[P]) persist(ctx context.Context, key string, payload P) (Record[P], error) {
	rec := Record[P]{
		Key:       key,
		Payload:   payload,
		Timestamp: o.opts.Clock().UTC(),
	}

	if err := o.store.Append(ctx, rec); err != nil {
		o.metrics.StorageFault(o.opts.Name, "append")
		return rec, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	n, err := o.store.EvictOlderThan(ctx, rec.Timestamp.Add(-o.opts.Horizon))
	if err != nil {
		o.metrics.StorageFault(o.opts.Name, "evict")
		o.logger.Warn("evicting expired records failed", zap.Error(err))
		return rec, nil
	}
	if n > 0 {
		o.metrics.Evicted(o.opts.Name, n)
		o.logger.Debug("evicted expired records", zap.Int64("count", n))
	}
	return rec, nil
}
