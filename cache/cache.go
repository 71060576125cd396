// Package cache holds recently read tag sets keyed by path, validated
// against file metadata so stale entries can never be served.
package cache

import (
	"sync"
	"time"
)

// DefaultMaxAge bounds how long an entry may be served even when the
// underlying metadata still matches.
const DefaultMaxAge = time.Hour

// Entry is one path's cached tag set together with the metadata it was
// read under.
type Entry struct {
	Path    string
	Tags    []string
	ModTime time.Time
	Size    int64
}

type cached struct {
	tags     []string
	modTime  time.Time
	size     int64
	storedAt time.Time
}

// MetadataCache is a mutex-guarded map from path to tag set. A lookup hits
// only when the caller's mtime and size match the stored ones exactly and
// the entry has not outlived maxAge; any mismatch evicts the entry.
type MetadataCache struct {
	mu      sync.Mutex
	entries map[string]cached
	maxAge  time.Duration
	now     func() time.Time
	done    chan struct{}
	closed  sync.Once
}

// NewMetadataCache creates a cache and starts its background sweeper,
// which drops expired entries every maxAge/2. Close stops the sweeper.
func NewMetadataCache(maxAge time.Duration) *MetadataCache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	c := &MetadataCache{
		entries: make(map[string]cached),
		maxAge:  maxAge,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *MetadataCache) sweepLoop() {
	ticker := time.NewTicker(c.maxAge / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// Get returns the cached tags for path if the entry is fresh and its
// recorded metadata matches modTime and size exactly. A mismatched or
// expired entry is evicted and reported as a miss.
func (c *MetadataCache) Get(path string, modTime time.Time, size int64) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	if !e.modTime.Equal(modTime) || e.size != size || c.expiredLocked(e) {
		delete(c.entries, path)
		return nil, false
	}

	tags := make([]string, len(e.tags))
	copy(tags, e.tags)
	return tags, true
}

// Put stores one entry, replacing any previous one for the path.
func (c *MetadataCache) Put(path string, tags []string, modTime time.Time, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(Entry{Path: path, Tags: tags, ModTime: modTime, Size: size})
}

// PutBatch stores all entries under a single critical section, so a
// concurrent reader sees either none or all of a chunk's results.
func (c *MetadataCache) PutBatch(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.putLocked(e)
	}
}

func (c *MetadataCache) putLocked(e Entry) {
	tags := make([]string, len(e.Tags))
	copy(tags, e.Tags)
	c.entries[e.Path] = cached{
		tags:     tags,
		modTime:  e.ModTime,
		size:     e.Size,
		storedAt: c.now(),
	}
}

// Invalidate drops the entry for path, if any.
func (c *MetadataCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// InvalidateAll drops every entry.
func (c *MetadataCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cached)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *MetadataCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for path, e := range c.entries {
		if c.expiredLocked(e) {
			delete(c.entries, path)
			removed++
		}
	}
	return removed
}

func (c *MetadataCache) expiredLocked(e cached) bool {
	return c.now().Sub(e.storedAt) >= c.maxAge
}

// Len reports the number of live entries.
func (c *MetadataCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweeper. The cache remains usable.
func (c *MetadataCache) Close() {
	c.closed.Do(func() {
		close(c.done)
	})
}

// setNow overrides the clock for expiry tests.
func (c *MetadataCache) setNow(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
