package timesheet

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// EntryCache caches week entries per (user, week) key. Concurrent loads for
// the same key are collapsed through singleflight, and every load carries the
// sequence number current at issue time: a result observed after the key was
// invalidated (a newer write happened) is returned to its caller but never
// stored, so stale responses cannot overwrite fresher state.
type EntryCache struct {
	mu    sync.Mutex
	group singleflight.Group
	seq   map[string]uint64
	data  map[string]cachedEntries
}

type cachedEntries struct {
	seq     uint64
	entries WeekEntries
}

// NewEntryCache constructs an empty cache.
func NewEntryCache() *EntryCache {
	return &EntryCache{
		seq:  make(map[string]uint64),
		data: make(map[string]cachedEntries),
	}
}

func entryKey(userID int64, weekKey string) string {
	return fmt.Sprintf("%d:%s", userID, weekKey)
}

// Get returns cached entries or loads them. The load result is stored only
// if no Invalidate for the key happened while the load was in flight.
func (c *EntryCache) Get(ctx context.Context, userID int64, weekKey string, load func(context.Context) (WeekEntries, error)) (WeekEntries, error) {
	key := entryKey(userID, weekKey)

	c.mu.Lock()
	if cached, ok := c.data[key]; ok {
		c.mu.Unlock()
		return cached.entries, nil
	}
	issued := c.seq[key]
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		entries, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, issued, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(WeekEntries), nil
}

func (c *EntryCache) store(key string, issued uint64, entries WeekEntries) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq[key] != issued {
		return
	}
	c.data[key] = cachedEntries{seq: issued, entries: entries}
}

// Invalidate drops the cached value for a key and bumps its sequence so that
// in-flight loads issued before the invalidation are discarded on arrival.
func (c *EntryCache) Invalidate(userID int64, weekKey string) {
	key := entryKey(userID, weekKey)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[key]++
	delete(c.data, key)
}
