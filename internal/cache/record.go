package cache

import (
	"context"
	"errors"
	"time"
)

// RetentionHorizon is the maximum age of a stored record. Older records are
// evicted on the next write and never served.
const RetentionHorizon = 24 * time.Hour

var (
	// ErrNotFound is returned by a Store when a key has no records.
	ErrNotFound = errors.New("no cached record for key")
	// ErrNoData is returned when neither a fresh nor a previous record is available.
	ErrNoData = errors.New("no data available")
	// ErrPersistFailed is returned when a record could not be written.
	ErrPersistFailed = errors.New("persist failed")
)

// Record is one cached payload written at Timestamp.
type Record[P any] struct {
	Key       string    `json:"key"`
	Payload   P         `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Age returns how old the record is at now.
func (r Record[P]) Age(now time.Time) time.Duration {
	return now.Sub(r.Timestamp)
}

// Store is an append-only keyed record store.
type Store[P any] interface {
	// Latest returns the record with the greatest timestamp for key, or ErrNotFound.
	Latest(ctx context.Context, key string) (Record[P], error)
	// Append persists rec without touching earlier records.
	Append(ctx context.Context, rec Record[P]) error
	// EvictOlderThan deletes every record, across all keys, written before cutoff.
	EvictOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// LatestAll returns the latest record of every key, ordered by key.
	LatestAll(ctx context.Context) ([]Record[P], error)
}
