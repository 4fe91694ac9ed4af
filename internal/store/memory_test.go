package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/coastal-conditions/internal/cache"
)

var base = time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC)

func rec(key string, v int, at time.Duration) cache.Record[int] {
	return cache.Record[int]{Key: key, Payload: v, Timestamp: base.Add(at)}
}

func TestMemoryStoreLatest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[int](0)

	_, err := s.Latest(ctx, "a")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, s.Append(ctx, rec("a", 1, 0)))
	require.NoError(t, s.Append(ctx, rec("a", 3, 2*time.Minute)))
	require.NoError(t, s.Append(ctx, rec("a", 2, time.Minute)))

	got, err := s.Latest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Payload, "greatest timestamp wins regardless of append order")

	require.NoError(t, s.Append(ctx, rec("a", 4, 2*time.Minute)))
	got, err = s.Latest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Payload, "equal timestamps resolve to the last append")
}

func TestMemoryStoreMaxHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[int](2)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, rec("a", i, time.Duration(i)*time.Minute)))
	}
	assert.Equal(t, 2, s.Len())

	got, err := s.Latest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Payload)
}

func TestMemoryStoreEvictOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[int](0)

	require.NoError(t, s.Append(ctx, rec("a", 1, -25*time.Hour)))
	require.NoError(t, s.Append(ctx, rec("a", 2, 0)))
	require.NoError(t, s.Append(ctx, rec("b", 3, -30*time.Hour)))
	require.NoError(t, s.Append(ctx, rec("c", 4, -24*time.Hour)))

	n, err := s.EvictOlderThan(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 2, s.Len())

	_, err = s.Latest(ctx, "b")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	got, err := s.Latest(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Payload, "a record exactly at the cutoff is kept")
}

func TestMemoryStoreLatestAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[int](0)

	all, err := s.LatestAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, s.Append(ctx, rec("b", 1, 0)))
	require.NoError(t, s.Append(ctx, rec("a", 2, 0)))
	require.NoError(t, s.Append(ctx, rec("b", 3, time.Minute)))

	all, err = s.LatestAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Key)
	assert.Equal(t, 3, all[1].Payload)
}
