package cache

import (
	"reflect"
	"testing"
	"time"
)

func TestGetMissesOnMetadataChange(t *testing.T) {
	c := NewMetadataCache(time.Hour)
	defer c.Close()

	mtime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.Put("/p/a", []string{"go"}, mtime, 100)

	tests := []struct {
		name    string
		modTime time.Time
		size    int64
		wantHit bool
	}{
		{"exact match hits", mtime, 100, true},
		{"changed mtime misses", mtime.Add(time.Second), 100, false},
		{"changed size misses", mtime, 101, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reinsert since a miss evicts.
			c.Put("/p/a", []string{"go"}, mtime, 100)
			tags, ok := c.Get("/p/a", tt.modTime, tt.size)
			if ok != tt.wantHit {
				t.Fatalf("hit = %v, want %v", ok, tt.wantHit)
			}
			if tt.wantHit && !reflect.DeepEqual(tags, []string{"go"}) {
				t.Errorf("tags = %v, want [go]", tags)
			}
		})
	}
}

func TestMismatchEvictsEntry(t *testing.T) {
	c := NewMetadataCache(time.Hour)
	defer c.Close()

	mtime := time.Now()
	c.Put("/p/a", []string{"go"}, mtime, 10)

	if _, ok := c.Get("/p/a", mtime, 11); ok {
		t.Fatal("expected miss on size change")
	}
	if c.Len() != 0 {
		t.Errorf("entry survived a mismatched lookup, Len = %d", c.Len())
	}
}

func TestExpiry(t *testing.T) {
	c := NewMetadataCache(time.Hour)
	defer c.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	c.setNow(func() time.Time { return current })

	mtime := base.Add(-time.Minute)
	c.Put("/p/a", []string{"go"}, mtime, 10)

	current = base.Add(59 * time.Minute)
	if _, ok := c.Get("/p/a", mtime, 10); !ok {
		t.Fatal("expected hit before maxAge")
	}

	current = base.Add(61 * time.Minute)
	if _, ok := c.Get("/p/a", mtime, 10); ok {
		t.Fatal("expected miss after maxAge")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not evicted, Len = %d", c.Len())
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	c := NewMetadataCache(time.Hour)
	defer c.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	c.setNow(func() time.Time { return current })

	c.Put("/p/old", []string{"go"}, base, 1)
	current = base.Add(50 * time.Minute)
	c.Put("/p/new", []string{"cli"}, base, 2)

	current = base.Add(70 * time.Minute)
	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d entries, want 1", removed)
	}
	if _, ok := c.Get("/p/new", base, 2); !ok {
		t.Error("fresh entry swept")
	}
}

func TestPutBatch(t *testing.T) {
	c := NewMetadataCache(time.Hour)
	defer c.Close()

	mtime := time.Now()
	c.PutBatch([]Entry{
		{Path: "/p/a", Tags: []string{"go"}, ModTime: mtime, Size: 1},
		{Path: "/p/b", Tags: nil, ModTime: mtime, Size: 2},
	})

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}

	// Empty tag sets are cached too: a hit with zero tags is a valid
	// negative result.
	tags, ok := c.Get("/p/b", mtime, 2)
	if !ok {
		t.Fatal("expected hit for cached empty set")
	}
	if len(tags) != 0 {
		t.Errorf("tags = %v, want empty", tags)
	}
}

func TestReturnedTagsAreCopies(t *testing.T) {
	c := NewMetadataCache(time.Hour)
	defer c.Close()

	mtime := time.Now()
	c.Put("/p/a", []string{"go", "cli"}, mtime, 1)

	tags, _ := c.Get("/p/a", mtime, 1)
	tags[0] = "mutated"

	again, _ := c.Get("/p/a", mtime, 1)
	if again[0] != "go" {
		t.Errorf("cache entry aliased by caller mutation: %v", again)
	}
}

func TestInvalidate(t *testing.T) {
	c := NewMetadataCache(time.Hour)
	defer c.Close()

	mtime := time.Now()
	c.Put("/p/a", []string{"go"}, mtime, 1)
	c.Put("/p/b", []string{"cli"}, mtime, 2)

	c.Invalidate("/p/a")
	if _, ok := c.Get("/p/a", mtime, 1); ok {
		t.Error("invalidated entry still served")
	}
	if _, ok := c.Get("/p/b", mtime, 2); !ok {
		t.Error("unrelated entry dropped")
	}

	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("Len after InvalidateAll = %d, want 0", c.Len())
	}
}
