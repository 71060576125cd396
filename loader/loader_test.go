package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/projdex/projdex/cache"
	"github.com/projdex/projdex/tags"
)

func pathStats(n int, mtime time.Time) []PathStat {
	paths := make([]PathStat, n)
	for i := range paths {
		paths[i] = PathStat{
			Path:    fmt.Sprintf("/projects/p%03d", i),
			ModTime: mtime,
			Size:    int64(i + 1),
		}
	}
	return paths
}

func TestLoadSkipsCachedPaths(t *testing.T) {
	ctx := context.Background()
	src := tags.NewMemorySource()
	c := cache.NewMetadataCache(time.Hour)
	defer c.Close()

	mtime := time.Now()
	paths := pathStats(120, mtime)

	for _, ps := range paths {
		if err := src.WriteTags(ctx, ps.Path, []string{"go"}); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	// Pre-cache the first 80.
	for _, ps := range paths[:80] {
		c.Put(ps.Path, []string{"go"}, ps.ModTime, ps.Size)
	}

	l := New(src, c, Config{ChunkSize: 10, MaxParallel: 4})
	result, err := l.Load(ctx, paths)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := src.ReadCalls(); got != 40 {
		t.Errorf("source reads = %d, want exactly 40", got)
	}
	if len(result) != 120 {
		t.Errorf("result size = %d, want 120", len(result))
	}

	stats := l.Stats()
	if stats.Cached != 80 || stats.Loaded != 40 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want {Cached:80 Loaded:40 Failed:0}", stats)
	}
}

// trackingSource records the maximum number of concurrent ReadTags calls.
type trackingSource struct {
	inner tags.TagSource

	mu       sync.Mutex
	inFlight int
	peak     int
}

func (s *trackingSource) ReadTags(ctx context.Context, path string) ([]string, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()
	return s.inner.ReadTags(ctx, path)
}

func (s *trackingSource) WriteTags(ctx context.Context, path string, tagSet []string) error {
	return s.inner.WriteTags(ctx, path, tagSet)
}

func TestLoadBoundsConcurrency(t *testing.T) {
	ctx := context.Background()
	src := &trackingSource{inner: tags.NewMemorySource()}
	c := cache.NewMetadataCache(time.Hour)
	defer c.Close()

	paths := pathStats(60, time.Now())

	l := New(src, c, Config{ChunkSize: 5, MaxParallel: 3})
	if _, err := l.Load(ctx, paths); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	src.mu.Lock()
	peak := src.peak
	src.mu.Unlock()
	if peak > 3 {
		t.Errorf("observed %d concurrent reads, limit is 3", peak)
	}
	if peak < 2 {
		t.Logf("only %d concurrent reads observed; chunks may have run serially", peak)
	}
}

func TestLoadDropsEmptySetsButCachesThem(t *testing.T) {
	ctx := context.Background()
	src := tags.NewMemorySource()
	c := cache.NewMetadataCache(time.Hour)
	defer c.Close()

	mtime := time.Now()
	paths := []PathStat{
		{Path: "/p/tagged", ModTime: mtime, Size: 1},
		{Path: "/p/bare", ModTime: mtime, Size: 2},
	}
	if err := src.WriteTags(ctx, "/p/tagged", []string{"go"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	l := New(src, c, Config{})
	result, err := l.Load(ctx, paths)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, ok := result["/p/bare"]; ok {
		t.Error("empty tag set leaked into the result")
	}
	if _, ok := result["/p/tagged"]; !ok {
		t.Error("tagged path missing from the result")
	}

	// The empty set must still be cached: a second load reads nothing.
	before := src.ReadCalls()
	if _, err := l.Load(ctx, paths); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if src.ReadCalls() != before {
		t.Errorf("second load hit the source %d more times", src.ReadCalls()-before)
	}
}

func TestLoadFailureOmitsPathAndRetriesNextTime(t *testing.T) {
	ctx := context.Background()
	src := tags.NewMemorySource()
	c := cache.NewMetadataCache(time.Hour)
	defer c.Close()

	mtime := time.Now()
	paths := []PathStat{
		{Path: "/p/ok", ModTime: mtime, Size: 1},
		{Path: "/p/flaky", ModTime: mtime, Size: 2},
	}
	if err := src.WriteTags(ctx, "/p/ok", []string{"go"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := src.WriteTags(ctx, "/p/flaky", []string{"infra"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	src.SetError("/p/flaky", errors.New("transient"))

	l := New(src, c, Config{})
	result, err := l.Load(ctx, paths)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := result["/p/flaky"]; ok {
		t.Error("failed path present in result")
	}
	if l.Stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1", l.Stats().Failed)
	}

	// After the source recovers, the next load picks the path up again.
	src.SetError("/p/flaky", nil)
	result, err = l.Load(ctx, paths)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if got := result["/p/flaky"]; len(got) != 1 || got[0] != "infra" {
		t.Errorf("recovered path tags = %v, want [infra]", got)
	}
}

func TestLoadHonorsCancellation(t *testing.T) {
	src := tags.NewMemorySource()
	c := cache.NewMetadataCache(time.Hour)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New(src, c, Config{})
	if _, err := l.Load(ctx, pathStats(10, time.Now())); !errors.Is(err, context.Canceled) {
		t.Errorf("Load error = %v, want context.Canceled", err)
	}
}
