package indexer

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Candidate is a directory found under a watched root, carrying the
// stat fields tag cache validation keys on.
type Candidate struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// Discover lists the immediate subdirectories of each watched root.
// Roots that cannot be read are skipped with a warning so one dead
// mount never blocks a scan. Results are sorted by path and deduped
// across overlapping roots.
func Discover(roots []string, extraIgnore []string) []Candidate {
	var out []Candidate
	seen := make(map[string]struct{})

	for _, root := range roots {
		root = expandTilde(root)
		entries, err := os.ReadDir(root)
		if err != nil {
			log.Printf("Warning: failed to read watched dir %s: %v", root, err)
			continue
		}

		matcher := NewIgnoreMatcher(root, extraIgnore)
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			name := entry.Name()
			if matcher.ShouldIgnore(name) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			path := filepath.Join(root, name)
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			out = append(out, Candidate{
				Name:    name,
				Path:    path,
				ModTime: info.ModTime(),
				Size:    info.Size(),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
