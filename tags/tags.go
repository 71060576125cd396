// Package tags reads and writes per-directory tag sets. Tags are plain
// strings attached to a path through a TagSource; the engine layers caching
// and indexing on top and never touches the source representation directly.
package tags

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// TagSource is the backing representation of per-path tags.
type TagSource interface {
	// ReadTags returns the tags attached to path. A path with no tags
	// returns an empty slice and no error.
	ReadTags(ctx context.Context, path string) ([]string, error)
	// WriteTags replaces the tags attached to path. An empty slice clears
	// all tags.
	WriteTags(ctx context.Context, path string, tags []string) error
}

// Normalize trims whitespace, drops empty entries, deduplicates, and sorts.
// Tag comparison everywhere else is byte equality on the normalized form.
func Normalize(in []string) []string {
	if len(in) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// MemorySource is an in-memory TagSource for tests and dry runs.
type MemorySource struct {
	mu        sync.Mutex
	tags      map[string][]string
	failures  map[string]error
	readCalls int
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		tags:     make(map[string][]string),
		failures: make(map[string]error),
	}
}

func (m *MemorySource) ReadTags(ctx context.Context, path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls++
	if err, ok := m.failures[path]; ok {
		return nil, err
	}

	tags := m.tags[path]
	out := make([]string, len(tags))
	copy(out, tags)
	return out, nil
}

func (m *MemorySource) WriteTags(ctx context.Context, path string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failures[path]; ok {
		return err
	}

	norm := Normalize(tags)
	if len(norm) == 0 {
		delete(m.tags, path)
		return nil
	}
	m.tags[path] = norm
	return nil
}

// SetError makes subsequent reads and writes for path fail with err.
// A nil err clears the failure.
func (m *MemorySource) SetError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, path)
		return
	}
	m.failures[path] = err
}

// ReadCalls reports how many ReadTags calls the source has served.
func (m *MemorySource) ReadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCalls
}
