package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/projdex/projdex/tags"
)

// TagIndex is the project table plus the inverted tag index, guarded by a
// single RWMutex. The two structures are kept mutually consistent: a
// project id appears in the posting set of a tag exactly when that tag
// appears in the project's tag list. Every mutation restores that
// relationship before returning.
type TagIndex struct {
	mu       sync.RWMutex
	projects map[ProjectID]*Project
	inverted map[string]map[ProjectID]struct{}
	byPath   map[string]ProjectID
}

func NewTagIndex() *TagIndex {
	return &TagIndex{
		projects: make(map[ProjectID]*Project),
		inverted: make(map[string]map[ProjectID]struct{}),
		byPath:   make(map[string]ProjectID),
	}
}

// Upsert inserts or replaces a project. On replace, postings are updated
// from the tag diff between the stored record and the new one.
func (ix *TagIndex) Upsert(p Project) {
	p.Tags = tags.Normalize(p.Tags)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	var oldTags []string
	if existing, ok := ix.projects[p.ID]; ok {
		oldTags = existing.Tags
		if existing.Path != p.Path {
			delete(ix.byPath, existing.Path)
		}
	}

	stored := p.Clone()
	ix.projects[p.ID] = &stored
	ix.byPath[p.Path] = p.ID
	ix.applyDiffLocked(p.ID, oldTags, stored.Tags)
}

// Remove deletes a project and scrubs all its postings. Returns false if
// the id is unknown.
func (ix *TagIndex) Remove(id ProjectID) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	p, ok := ix.projects[id]
	if !ok {
		return false
	}
	for _, t := range p.Tags {
		ix.dropPostingLocked(t, id)
	}
	delete(ix.byPath, p.Path)
	delete(ix.projects, id)
	return true
}

// Rebuild replaces the entire index. The new tables are built off-lock
// and swapped in at once, so readers see either the old or the new state.
func (ix *TagIndex) Rebuild(projects []Project) {
	table := make(map[ProjectID]*Project, len(projects))
	inverted := make(map[string]map[ProjectID]struct{})
	byPath := make(map[string]ProjectID, len(projects))

	for _, p := range projects {
		stored := p.Clone()
		stored.Tags = tags.Normalize(stored.Tags)
		table[stored.ID] = &stored
		byPath[stored.Path] = stored.ID
		for _, t := range stored.Tags {
			set, ok := inverted[t]
			if !ok {
				set = make(map[ProjectID]struct{})
				inverted[t] = set
			}
			set[stored.ID] = struct{}{}
		}
	}

	ix.mu.Lock()
	ix.projects = table
	ix.inverted = inverted
	ix.byPath = byPath
	ix.mu.Unlock()
}

// UpdateTags is the single primitive every tag mutation funnels through.
// It removes the project's id from postings for tags leaving the set and
// adds it for tags entering, then stores the new tag list. oldTags is the
// caller's view of the previous set; postings are additionally scrubbed
// against the stored record, so a stale caller cannot strand an entry.
// Returns false without touching anything if the id is unknown.
func (ix *TagIndex) UpdateTags(id ProjectID, oldTags, newTags []string) bool {
	norm := tags.Normalize(newTags)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	p, ok := ix.projects[id]
	if !ok {
		return false
	}

	old := unionTags(tags.Normalize(oldTags), p.Tags)
	ix.applyDiffLocked(id, old, norm)
	p.Tags = norm
	return true
}

func (ix *TagIndex) applyDiffLocked(id ProjectID, oldTags, newTags []string) {
	for _, t := range diffTags(oldTags, newTags) {
		ix.dropPostingLocked(t, id)
	}
	for _, t := range diffTags(newTags, oldTags) {
		ix.addPostingLocked(t, id)
	}
}

func (ix *TagIndex) addPostingLocked(tag string, id ProjectID) {
	set, ok := ix.inverted[tag]
	if !ok {
		set = make(map[ProjectID]struct{})
		ix.inverted[tag] = set
	}
	set[id] = struct{}{}
}

func (ix *TagIndex) dropPostingLocked(tag string, id ProjectID) {
	set, ok := ix.inverted[tag]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ix.inverted, tag)
	}
}

// ProjectsForTag returns clones of all projects carrying tag, sorted by
// name, then path.
func (ix *TagIndex) ProjectsForTag(tag string) []Project {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	set := ix.inverted[tag]
	out := make([]Project, 0, len(set))
	for id := range set {
		if p, ok := ix.projects[id]; ok {
			out = append(out, p.Clone())
		}
	}
	sortProjects(out)
	return out
}

// TagsForProject returns a copy of the project's tag list.
func (ix *TagIndex) TagsForProject(id ProjectID) ([]string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	p, ok := ix.projects[id]
	if !ok {
		return nil, false
	}
	out := make([]string, len(p.Tags))
	copy(out, p.Tags)
	return out, true
}

// AllProjects returns clones of every project, sorted by name, then path.
func (ix *TagIndex) AllProjects() []Project {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]Project, 0, len(ix.projects))
	for _, p := range ix.projects {
		out = append(out, p.Clone())
	}
	sortProjects(out)
	return out
}

// AllTags returns every tag with its posting count, sorted by tag.
func (ix *TagIndex) AllTags() []TagCount {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]TagCount, 0, len(ix.inverted))
	for tag, set := range ix.inverted {
		out = append(out, TagCount{Tag: tag, Count: len(set)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Project returns a clone of the project with the given id.
func (ix *TagIndex) Project(id ProjectID) (Project, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	p, ok := ix.projects[id]
	if !ok {
		return Project{}, false
	}
	return p.Clone(), true
}

// ProjectByPath returns a clone of the project indexed at path.
func (ix *TagIndex) ProjectByPath(path string) (Project, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	id, ok := ix.byPath[path]
	if !ok {
		return Project{}, false
	}
	p, ok := ix.projects[id]
	if !ok {
		return Project{}, false
	}
	return p.Clone(), true
}

// Len reports the number of projects.
func (ix *TagIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.projects)
}

// SnapshotProjects returns clones of every project sorted by id, suitable
// for persistence and for the mutation coordinator's phase-1 snapshot.
func (ix *TagIndex) SnapshotProjects() []Project {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]Project, 0, len(ix.projects))
	for _, p := range ix.projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// checkConsistent verifies both directions of the index relationship.
// Test helper.
func (ix *TagIndex) checkConsistent() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for id, p := range ix.projects {
		for _, t := range p.Tags {
			set, ok := ix.inverted[t]
			if !ok {
				return fmt.Errorf("tag %q on project %s has no posting set", t, id)
			}
			if _, ok := set[id]; !ok {
				return fmt.Errorf("project %s missing from postings of %q", id, t)
			}
		}
	}
	for tag, set := range ix.inverted {
		if len(set) == 0 {
			return fmt.Errorf("empty posting set for %q left behind", tag)
		}
		for id := range set {
			p, ok := ix.projects[id]
			if !ok {
				return fmt.Errorf("postings of %q reference unknown project %s", tag, id)
			}
			if !p.HasTag(tag) {
				return fmt.Errorf("project %s posted under %q without carrying it", id, tag)
			}
		}
	}
	return nil
}

func sortProjects(ps []Project) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Name != ps[j].Name {
			return ps[i].Name < ps[j].Name
		}
		return ps[i].Path < ps[j].Path
	})
}

// diffTags returns the elements of a that are not in b. Both inputs are
// small normalized slices; a linear scan beats building sets.
func diffTags(a, b []string) []string {
	var out []string
	for _, t := range a {
		found := false
		for _, u := range b {
			if t == u {
				found = true
				break
			}
		}
		if !found {
			out = append(out, t)
		}
	}
	return out
}

// unionTags merges two normalized slices preserving set semantics.
func unionTags(a, b []string) []string {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	return tags.Normalize(append(append([]string{}, a...), b...))
}
