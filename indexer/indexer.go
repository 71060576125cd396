// Package indexer scans watched directories and reconciles what it finds
// with the tag engine: stats and tags flow in through the batch loader,
// git summaries are collected in parallel, and project identity survives
// rescans by path.
package indexer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/projdex/projdex/git"
	"github.com/projdex/projdex/index"
	"github.com/projdex/projdex/loader"
	"github.com/projdex/projdex/tags"
)

// DefaultGitParallel bounds how many git summaries run concurrently.
const DefaultGitParallel = 4

type Config struct {
	ExtraIgnore []string // entry names skipped in every watched root
	Rules       []Rule   // auto-tag rules applied at scan time
	GitParallel int
}

type Indexer struct {
	eng    *index.Engine
	loader *loader.BatchLoader
	cfg    Config
}

type Stats struct {
	Discovered int
	Added      int
	Kept       int
	Removed    int
	Duration   time.Duration
}

// ProgressInfo reports per-directory progress during a scan.
type ProgressInfo struct {
	Current int    // Current directory number (1-indexed)
	Total   int    // Total number of directories
	Path    string // Directory being processed
}

// ProgressCallback is called for each directory during a rebuild
type ProgressCallback func(info ProgressInfo)

func New(eng *index.Engine, ldr *loader.BatchLoader, cfg Config) *Indexer {
	if cfg.GitParallel <= 0 {
		cfg.GitParallel = DefaultGitParallel
	}
	return &Indexer{
		eng:    eng,
		loader: ldr,
		cfg:    cfg,
	}
}

// LoaderStats returns the tag loader's cumulative counters. CLI commands
// build one Indexer per run, so these read as per-run numbers there.
func (ix *Indexer) LoaderStats() loader.Stats {
	return ix.loader.Stats()
}

// Rebuild performs a full scan of the watched roots (no progress reporting)
func (ix *Indexer) Rebuild(ctx context.Context) (*Stats, error) {
	return ix.RebuildWithProgress(ctx, nil)
}

// RebuildWithProgress performs a full scan with progress reporting.
// The engine's project table is replaced wholesale: directories that
// vanished since the last scan drop out, surviving ones keep their ID
// and creation time.
func (ix *Indexer) RebuildWithProgress(ctx context.Context, onProgress ProgressCallback) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	candidates := Discover(ix.eng.WatchedDirs(), ix.cfg.ExtraIgnore)
	stats.Discovered = len(candidates)

	pathStats := make([]loader.PathStat, len(candidates))
	for i, c := range candidates {
		pathStats[i] = loader.PathStat{Path: c.Path, ModTime: c.ModTime, Size: c.Size}
	}
	tagsByPath, err := ix.loader.Load(ctx, pathStats)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}

	// Map existing projects by path so identity survives the rescan
	existing := make(map[string]index.Project)
	for _, p := range ix.eng.AllProjects() {
		existing[p.Path] = p
	}

	now := time.Now()
	projects := make([]index.Project, 0, len(candidates))
	for i, c := range candidates {
		if onProgress != nil {
			onProgress(ProgressInfo{Current: i + 1, Total: len(candidates), Path: c.Path})
		}

		p := index.Project{
			Name:    c.Name,
			Path:    c.Path,
			ModTime: c.ModTime,
			Size:    c.Size,
		}
		if prev, ok := existing[c.Path]; ok {
			p.ID = prev.ID
			p.Created = prev.Created
			p.GitCommits = prev.GitCommits
			p.GitLastCommit = prev.GitLastCommit
			stats.Kept++
			delete(existing, c.Path)
		} else {
			p.ID = index.NewProjectID()
			p.Created = now
			stats.Added++
		}
		p.Tags = tags.Normalize(append(tagsByPath[c.Path], applyRules(ix.cfg.Rules, c.Name)...))
		projects = append(projects, p)
	}
	stats.Removed = len(existing)

	ix.collectGitStats(ctx, projects)

	ix.eng.ReplaceAll(projects)
	stats.Duration = time.Since(start)
	return stats, nil
}

// Refresh re-stats the given directories and applies the changes without
// a full rescan. Directories that vanished or became ignored are removed
// from the index.
func (ix *Indexer) Refresh(ctx context.Context, paths []string) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	matchers := make(map[string]*IgnoreMatcher)
	matcherFor := func(root string) *IgnoreMatcher {
		if m, ok := matchers[root]; ok {
			return m
		}
		m := NewIgnoreMatcher(root, ix.cfg.ExtraIgnore)
		matchers[root] = m
		return m
	}

	var candidates []Candidate
	for _, path := range paths {
		name := filepath.Base(path)
		info, err := os.Stat(path)
		ignored := err == nil && matcherFor(filepath.Dir(path)).ShouldIgnore(name)

		if err != nil || !info.IsDir() || ignored {
			if p, ok := ix.eng.ProjectByPath(path); ok {
				ix.eng.RemoveProject(p.ID)
				ix.eng.Cache().Invalidate(path)
				stats.Removed++
			}
			continue
		}

		candidates = append(candidates, Candidate{
			Name:    name,
			Path:    path,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	stats.Discovered = len(candidates)

	if len(candidates) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	pathStats := make([]loader.PathStat, len(candidates))
	for i, c := range candidates {
		pathStats[i] = loader.PathStat{Path: c.Path, ModTime: c.ModTime, Size: c.Size}
	}
	tagsByPath, err := ix.loader.Load(ctx, pathStats)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}

	projects := make([]index.Project, 0, len(candidates))
	for _, c := range candidates {
		p, ok := ix.eng.ProjectByPath(c.Path)
		if ok {
			stats.Kept++
		} else {
			p = index.Project{ID: index.NewProjectID(), Created: time.Now()}
			stats.Added++
		}
		p.Name = c.Name
		p.Path = c.Path
		p.ModTime = c.ModTime
		p.Size = c.Size
		p.Tags = tags.Normalize(append(tagsByPath[c.Path], applyRules(ix.cfg.Rules, c.Name)...))
		projects = append(projects, p)
	}

	ix.collectGitStats(ctx, projects)

	for _, p := range projects {
		ix.eng.UpsertProject(p)
	}
	stats.Duration = time.Since(start)
	return stats, nil
}

// collectGitStats fills in git summaries for projects that are
// repositories. Failures leave the previous values in place.
func (ix *Indexer) collectGitStats(ctx context.Context, projects []index.Project) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.GitParallel)

	for i := range projects {
		p := &projects[i]
		g.Go(func() error {
			if !git.IsGitRepo(p.Path) {
				return nil
			}
			summary, err := git.Summarize(ctx, p.Path)
			if err != nil {
				log.Printf("Warning: failed to summarize git repo %s: %v", p.Path, err)
				return nil
			}
			p.GitCommits = summary.Commits
			p.GitLastCommit = summary.LastCommit
			return nil
		})
	}
	_ = g.Wait()
}
