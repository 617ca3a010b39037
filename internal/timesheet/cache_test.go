package timesheet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryCacheServesStoredValue(t *testing.T) {
	cache := NewEntryCache()
	ctx := context.Background()
	calls := 0

	load := func(context.Context) (WeekEntries, error) {
		calls++
		return WeekEntries{10: {1: {Hours: 8}}}, nil
	}

	first, err := cache.Get(ctx, 1, "2025-01-06", load)
	require.NoError(t, err)
	second, err := cache.Get(ctx, 1, "2025-01-06", load)
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
}

func TestEntryCacheKeysAreIndependent(t *testing.T) {
	cache := NewEntryCache()
	ctx := context.Background()
	calls := 0

	load := func(context.Context) (WeekEntries, error) {
		calls++
		return WeekEntries{}, nil
	}

	_, err := cache.Get(ctx, 1, "2025-01-06", load)
	require.NoError(t, err)
	_, err = cache.Get(ctx, 1, "2025-01-13", load)
	require.NoError(t, err)
	_, err = cache.Get(ctx, 2, "2025-01-06", load)
	require.NoError(t, err)

	require.Equal(t, 3, calls)
}

func TestEntryCacheDiscardsLoadSupersededByInvalidate(t *testing.T) {
	cache := NewEntryCache()
	ctx := context.Background()

	stale := WeekEntries{10: {1: {Hours: 1}}}
	fresh := WeekEntries{10: {1: {Hours: 2}}}

	// Invalidate fires while the first load is in flight: its result must
	// reach the caller but not be stored.
	got, err := cache.Get(ctx, 1, "2025-01-06", func(context.Context) (WeekEntries, error) {
		cache.Invalidate(1, "2025-01-06")
		return stale, nil
	})
	require.NoError(t, err)
	require.Equal(t, stale, got)

	got, err = cache.Get(ctx, 1, "2025-01-06", func(context.Context) (WeekEntries, error) {
		return fresh, nil
	})
	require.NoError(t, err)
	require.Equal(t, fresh, got)
}

func TestEntryCacheInvalidateDropsStoredValue(t *testing.T) {
	cache := NewEntryCache()
	ctx := context.Background()
	calls := 0

	load := func(context.Context) (WeekEntries, error) {
		calls++
		return WeekEntries{}, nil
	}

	_, err := cache.Get(ctx, 1, "2025-01-06", load)
	require.NoError(t, err)
	cache.Invalidate(1, "2025-01-06")
	_, err = cache.Get(ctx, 1, "2025-01-06", load)
	require.NoError(t, err)

	require.Equal(t, 2, calls)
}
