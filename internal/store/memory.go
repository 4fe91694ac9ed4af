package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/coastal-conditions/internal/cache"
)

// RecordHistory holds the records of one key in append order.
type RecordHistory[P any] struct {
	Records []cache.Record[P]
}

// MemoryStore is a concurrency-safe in-memory implementation of cache.Store.
// It does not survive restarts and is meant for tests and local runs.
type MemoryStore[P any] struct {
	mu sync.RWMutex

	// key: cache key, value: history
	data map[string]*RecordHistory[P]

	// max number of records per key; the oldest are dropped first
	maxHistory int
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore[P any](maxHistory int) *MemoryStore[P] {
	return &MemoryStore[P]{
		data:       make(map[string]*RecordHistory[P]),
		maxHistory: maxHistory,
	}
}

// Append adds a record for its key and enforces the per-key count limit.
func (s *MemoryStore[P]) Append(_ context.Context, rec cache.Record[P]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[rec.Key]
	if !ok {
		history = &RecordHistory[P]{}
		s.data[rec.Key] = history
	}

	history.Records = append(history.Records, rec)

	if s.maxHistory > 0 && len(history.Records) > s.maxHistory {
		over := len(history.Records) - s.maxHistory
		history.Records = history.Records[over:]
	}
	return nil
}

// Latest returns the record with the greatest timestamp for key. Among equal
// timestamps the one appended last wins.
func (s *MemoryStore[P]) Latest(_ context.Context, key string) (cache.Record[P], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok || len(history.Records) == 0 {
		return cache.Record[P]{}, cache.ErrNotFound
	}
	return latestOf(history.Records), nil
}

// EvictOlderThan removes records written before cutoff from every key.
func (s *MemoryStore[P]) EvictOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, history := range s.data {
		kept := history.Records[:0]
		for _, rec := range history.Records {
			if rec.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		history.Records = kept

		if len(history.Records) == 0 {
			delete(s.data, key)
		}
	}
	return removed, nil
}

// LatestAll returns the latest record of every key, ordered by key.
func (s *MemoryStore[P]) LatestAll(_ context.Context) ([]cache.Record[P], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]cache.Record[P], 0, len(s.data))
	for _, history := range s.data {
		if len(history.Records) == 0 {
			continue
		}
		result = append(result, latestOf(history.Records))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result, nil
}

// Len returns the total number of stored records.
func (s *MemoryStore[P]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, history := range s.data {
		n += len(history.Records)
	}
	return n
}

func latestOf[P any](records []cache.Record[P]) cache.Record[P] {
	best := records[0]
	for _, rec := range records[1:] {
		if !rec.Timestamp.Before(best.Timestamp) {
			best = rec
		}
	}
	return best
}
