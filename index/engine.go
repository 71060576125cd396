package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/projdex/projdex/cache"
	"github.com/projdex/projdex/tags"
)

// ErrProjectNotFound is returned by single-project mutations for unknown ids.
var ErrProjectNotFound = errors.New("project not found")

// Options configures an Engine. Source and Store are required.
type Options struct {
	Source      tags.TagSource
	Store       SnapshotStore
	CacheMaxAge time.Duration
	SaveDelay   time.Duration
	WatchedDirs []string
}

// EngineStats summarizes engine state for status output.
type EngineStats struct {
	Projects     int       `json:"projects"`
	Tags         int       `json:"tags"`
	CacheEntries int       `json:"cache_entries"`
	Saves        int       `json:"saves"`
	SaveErrors   int       `json:"save_errors"`
	Recoveries   int       `json:"recoveries"`
	LastSave     time.Time `json:"last_save,omitempty"`
}

// Engine is the assembled tag index: cache, index, registry, mutation
// coordinator, and persistence behind one constructed instance. There is
// no package-level singleton; callers build one per workspace and pass it
// around.
type Engine struct {
	src     tags.TagSource
	store   SnapshotStore
	cache   *cache.MetadataCache
	idx     *TagIndex
	reg     *TagRegistry
	coord   *Coordinator
	persist *Persister
	watched []string
}

func New(opts Options) (*Engine, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("tag source is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}

	e := &Engine{
		src:     opts.Source,
		store:   opts.Store,
		cache:   cache.NewMetadataCache(opts.CacheMaxAge),
		idx:     NewTagIndex(),
		reg:     NewTagRegistry(),
		watched: append([]string(nil), opts.WatchedDirs...),
	}
	e.persist = NewPersister(opts.Store, e.Snapshot, opts.SaveDelay)
	e.coord = NewCoordinator(e.idx, e.reg, e.src, e.cache, e.persist.RequestSave)
	return e, nil
}

// LoadState seeds the engine from the snapshot store. Missing prior state
// leaves the engine empty.
func (e *Engine) LoadState(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if snap == nil {
		return nil
	}

	e.idx.Rebuild(snap.Projects)
	e.reg.LoadState(snap.Tags, snap.Selection)
	for _, p := range snap.Projects {
		e.reg.EnsureAll(p.Tags)
	}
	if len(e.watched) == 0 {
		e.watched = append([]string(nil), snap.WatchedDirs...)
	}
	return nil
}

// Snapshot assembles a deep copy of the persistable state.
func (e *Engine) Snapshot() *Snapshot {
	return &Snapshot{
		SavedAt:     time.Now(),
		Tags:        e.reg.States(),
		Selection:   e.reg.Selection(),
		WatchedDirs: append([]string(nil), e.watched...),
		Projects:    e.idx.SnapshotProjects(),
	}
}

// Queries.

func (e *Engine) ProjectsForTag(tag string) []Project { return e.idx.ProjectsForTag(tag) }

func (e *Engine) TagsForProject(id ProjectID) ([]string, bool) { return e.idx.TagsForProject(id) }

func (e *Engine) AllProjects() []Project { return e.idx.AllProjects() }

func (e *Engine) AllTags() []TagCount { return e.idx.AllTags() }

func (e *Engine) Project(id ProjectID) (Project, bool) { return e.idx.Project(id) }

func (e *Engine) ProjectByPath(path string) (Project, bool) { return e.idx.ProjectByPath(path) }

// FindProject maps a user-supplied reference to a project. The reference
// may be an absolute path, an exact project name, or a unique ID prefix,
// tried in that order. A reference matching several projects is an error
// rather than a guess.
func (e *Engine) FindProject(ref string) (Project, error) {
	if p, ok := e.idx.ProjectByPath(ref); ok {
		return p, nil
	}

	var matches []Project
	for _, p := range e.idx.AllProjects() {
		if p.Name == ref {
			matches = append(matches, p)
		}
	}
	if len(matches) > 1 {
		return Project{}, fmt.Errorf("project name %q is ambiguous (%d matches); use a path or ID prefix", ref, len(matches))
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	for _, p := range e.idx.AllProjects() {
		if strings.HasPrefix(string(p.ID), ref) {
			matches = append(matches, p)
		}
	}
	if len(matches) > 1 {
		return Project{}, fmt.Errorf("ID prefix %q is ambiguous (%d matches)", ref, len(matches))
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	return Project{}, fmt.Errorf("%w: no project matches %q", ErrProjectNotFound, ref)
}

// AddTagToProject attaches tag to one project: write-through to the tag
// source, then the index diff, then a save request. Adding a tag the
// project already carries is a no-op.
func (e *Engine) AddTagToProject(ctx context.Context, id ProjectID, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fmt.Errorf("tag name is empty")
	}

	p, ok := e.idx.Project(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	if p.HasTag(tag) {
		return nil
	}

	newTags := tags.Normalize(append(append([]string{}, p.Tags...), tag))
	if err := e.src.WriteTags(ctx, p.Path, newTags); err != nil {
		return fmt.Errorf("failed to write tags for %s: %w", p.Path, err)
	}

	e.idx.UpdateTags(id, p.Tags, newTags)
	e.cache.Invalidate(p.Path)
	e.reg.Ensure(tag)
	e.persist.RequestSave()
	return nil
}

// RemoveTagFromProject detaches tag from one project. Removing a tag the
// project does not carry is a no-op.
func (e *Engine) RemoveTagFromProject(ctx context.Context, id ProjectID, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fmt.Errorf("tag name is empty")
	}

	p, ok := e.idx.Project(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	if !p.HasTag(tag) {
		return nil
	}

	newTags := make([]string, 0, len(p.Tags)-1)
	for _, t := range p.Tags {
		if t != tag {
			newTags = append(newTags, t)
		}
	}
	if err := e.src.WriteTags(ctx, p.Path, newTags); err != nil {
		return fmt.Errorf("failed to write tags for %s: %w", p.Path, err)
	}

	e.idx.UpdateTags(id, p.Tags, newTags)
	e.cache.Invalidate(p.Path)
	e.persist.RequestSave()
	return nil
}

// DeleteTagEverywhere removes tag from the registry now and from every
// project in the background.
func (e *Engine) DeleteTagEverywhere(ctx context.Context, tag string) error {
	return e.coord.DeleteTagEverywhere(ctx, tag)
}

// RenameTagEverywhere renames tag across the registry now and every
// project in the background.
func (e *Engine) RenameTagEverywhere(ctx context.Context, old, new string) error {
	return e.coord.RenameTagEverywhere(ctx, old, new)
}

// Registry operations. Each ends with a save request.

func (e *Engine) SetTagColor(tag string, c TagColor) {
	e.reg.SetColor(tag, c)
	e.persist.RequestSave()
}

func (e *Engine) ClearTagColor(tag string) {
	e.reg.ClearColor(tag)
	e.persist.RequestSave()
}

func (e *Engine) TagColor(tag string) (TagColor, bool) { return e.reg.Color(tag) }

func (e *Engine) HideTag(tag string) {
	e.reg.Hide(tag)
	e.persist.RequestSave()
}

func (e *Engine) UnhideTag(tag string) {
	e.reg.Unhide(tag)
	e.persist.RequestSave()
}

func (e *Engine) IsTagHidden(tag string) bool { return e.reg.IsHidden(tag) }

func (e *Engine) SelectTags(sel []string) {
	e.reg.SetSelection(sel)
	e.persist.RequestSave()
}

func (e *Engine) Selection() []string { return e.reg.Selection() }

func (e *Engine) KnownTags() []string { return e.reg.Tags() }

// Index write-throughs used by the indexer orchestration.

// ReplaceAll swaps in a freshly built project table.
func (e *Engine) ReplaceAll(projects []Project) {
	e.idx.Rebuild(projects)
	for _, p := range projects {
		e.reg.EnsureAll(p.Tags)
	}
	e.persist.RequestSave()
}

// UpsertProject inserts or replaces one project record.
func (e *Engine) UpsertProject(p Project) {
	e.idx.Upsert(p)
	e.reg.EnsureAll(p.Tags)
	e.persist.RequestSave()
}

// RemoveProject drops one project record.
func (e *Engine) RemoveProject(id ProjectID) bool {
	if !e.idx.Remove(id) {
		return false
	}
	e.persist.RequestSave()
	return true
}

// Persistence.

func (e *Engine) RequestSave() { e.persist.RequestSave() }

func (e *Engine) ForceSave(ctx context.Context) error { return e.persist.ForceSave(ctx) }

// Wait blocks until in-flight background mutations have settled.
func (e *Engine) Wait() { e.coord.Wait() }

// SetOnMutationComplete registers a completion callback on the mutation
// coordinator.
func (e *Engine) SetOnMutationComplete(fn func(MutationResult)) {
	e.coord.SetOnComplete(fn)
}

// Close waits for mutations, flushes pending saves, and shuts down the
// cache sweeper and the store.
func (e *Engine) Close(ctx context.Context) error {
	e.coord.Wait()
	saveErr := e.persist.Close(ctx)
	e.cache.Close()
	closeErr := e.store.Close()
	if saveErr != nil {
		return saveErr
	}
	return closeErr
}

// Accessors for the orchestration layers.

func (e *Engine) Cache() *cache.MetadataCache { return e.cache }
func (e *Engine) Source() tags.TagSource      { return e.src }

func (e *Engine) WatchedDirs() []string {
	return append([]string(nil), e.watched...)
}

func (e *Engine) Stats() EngineStats {
	save := e.persist.Stats()
	return EngineStats{
		Projects:     e.idx.Len(),
		Tags:         len(e.idx.AllTags()),
		CacheEntries: e.cache.Len(),
		Saves:        save.Saves,
		SaveErrors:   save.Errors,
		Recoveries:   e.coord.Recoveries(),
		LastSave:     save.LastSave,
	}
}
