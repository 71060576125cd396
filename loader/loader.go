// Package loader reads tag sets for many paths at once, consulting the
// metadata cache first and fanning the rest out to the tag source in
// bounded-concurrency chunks.
package loader

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/projdex/projdex/cache"
	"github.com/projdex/projdex/tags"
)

const (
	// DefaultChunkSize is how many paths one worker reads back to back.
	DefaultChunkSize = 50
	// DefaultMaxParallel bounds how many chunks load concurrently.
	DefaultMaxParallel = 4
)

// PathStat identifies a path together with the metadata the caller
// observed for it; the cache validates entries against these values.
type PathStat struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Stats are cumulative counters across all Load calls.
type Stats struct {
	Cached int // paths served from the cache
	Loaded int // paths read from the tag source
	Failed int // paths whose read failed
}

type Config struct {
	ChunkSize   int
	MaxParallel int
}

// BatchLoader loads tags for batches of paths. Cached paths never touch
// the source; uncached ones are read in chunks, each chunk's results
// merged into the shared result and cached as soon as the chunk finishes.
type BatchLoader struct {
	src         tags.TagSource
	cache       *cache.MetadataCache
	chunkSize   int
	maxParallel int

	mu    sync.Mutex
	stats Stats
}

func New(src tags.TagSource, c *cache.MetadataCache, cfg Config) *BatchLoader {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	return &BatchLoader{
		src:         src,
		cache:       c,
		chunkSize:   cfg.ChunkSize,
		maxParallel: cfg.MaxParallel,
	}
}

// Load returns path -> tags for every path in the batch that has at least
// one tag. It returns only once every chunk has finished. A read failure
// omits that path and never aborts the batch; cancellation of ctx does.
func (l *BatchLoader) Load(ctx context.Context, paths []PathStat) (map[string][]string, error) {
	result := make(map[string][]string)

	var uncached []PathStat
	cachedHits := 0
	for _, ps := range paths {
		tagSet, ok := l.cache.Get(ps.Path, ps.ModTime, ps.Size)
		if !ok {
			uncached = append(uncached, ps)
			continue
		}
		cachedHits++
		if len(tagSet) > 0 {
			result[ps.Path] = tagSet
		}
	}

	l.mu.Lock()
	l.stats.Cached += cachedHits
	l.mu.Unlock()

	if len(uncached) == 0 {
		return result, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxParallel)

	var resultMu sync.Mutex
	batchFailed := 0
	for _, chunk := range chunkPaths(uncached, l.chunkSize) {
		chunk := chunk
		g.Go(func() error {
			entries := make([]cache.Entry, 0, len(chunk))
			failed := 0

			for _, ps := range chunk {
				if err := ctx.Err(); err != nil {
					return err
				}
				tagSet, err := l.src.ReadTags(ctx, ps.Path)
				if err != nil {
					// Transient source errors degrade to an
					// empty set; the path stays uncached so
					// the next load retries it.
					failed++
					continue
				}
				entries = append(entries, cache.Entry{
					Path:    ps.Path,
					Tags:    tagSet,
					ModTime: ps.ModTime,
					Size:    ps.Size,
				})
			}

			resultMu.Lock()
			for _, e := range entries {
				if len(e.Tags) > 0 {
					result[e.Path] = e.Tags
				}
			}
			batchFailed += failed
			resultMu.Unlock()

			l.cache.PutBatch(entries)

			l.mu.Lock()
			l.stats.Loaded += len(entries)
			l.stats.Failed += failed
			l.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if batchFailed > 0 {
		log.Printf("Warning: failed to read tags for %d of %d paths", batchFailed, len(paths))
	}

	return result, nil
}

// Stats returns the cumulative counters.
func (l *BatchLoader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func chunkPaths(paths []PathStat, size int) [][]PathStat {
	var chunks [][]PathStat
	for len(paths) > 0 {
		n := size
		if n > len(paths) {
			n = len(paths)
		}
		chunks = append(chunks, paths[:n])
		paths = paths[n:]
	}
	return chunks
}
