package index

import (
	"sort"
	"sync"

	"github.com/projdex/projdex/tags"
)

// TagRegistry is the visible tag state outside the index itself: the set
// of known tags, display colors, hidden flags, and the active selection
// (the persisted tag filter). The mutation coordinator edits it in phase
// one, before any project record changes.
type TagRegistry struct {
	mu        sync.Mutex
	known     map[string]struct{}
	colors    map[string]TagColor
	hidden    map[string]struct{}
	selection []string
}

func NewTagRegistry() *TagRegistry {
	return &TagRegistry{
		known:  make(map[string]struct{}),
		colors: make(map[string]TagColor),
		hidden: make(map[string]struct{}),
	}
}

// Ensure records tag as known.
func (r *TagRegistry) Ensure(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[tag] = struct{}{}
}

// EnsureAll records every tag in the list as known.
func (r *TagRegistry) EnsureAll(tagList []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tagList {
		r.known[t] = struct{}{}
	}
}

// Remove forgets the tag entirely: known set, color, hidden flag, and any
// selection entry.
func (r *TagRegistry) Remove(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.known, tag)
	delete(r.colors, tag)
	delete(r.hidden, tag)
	r.selection = removeString(r.selection, tag)
}

// Rename moves all registry state from old to new. When new already has a
// color, that color wins; hidden flags are or-ed; selection entries are
// rewritten in place and deduplicated.
func (r *TagRegistry) Rename(old, new string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.known[old]; ok {
		delete(r.known, old)
		r.known[new] = struct{}{}
	}
	if c, ok := r.colors[old]; ok {
		delete(r.colors, old)
		if _, taken := r.colors[new]; !taken {
			r.colors[new] = c
		}
	}
	if _, ok := r.hidden[old]; ok {
		delete(r.hidden, old)
		r.hidden[new] = struct{}{}
	}

	renamed := make([]string, 0, len(r.selection))
	for _, t := range r.selection {
		if t == old {
			t = new
		}
		if !containsString(renamed, t) {
			renamed = append(renamed, t)
		}
	}
	r.selection = renamed
}

// SetColor assigns a display color and marks the tag known.
func (r *TagRegistry) SetColor(tag string, c TagColor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[tag] = struct{}{}
	r.colors[tag] = c
}

// Color returns the tag's color, if one is set.
func (r *TagRegistry) Color(tag string) (TagColor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.colors[tag]
	return c, ok
}

// ClearColor removes the tag's color without forgetting the tag.
func (r *TagRegistry) ClearColor(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.colors, tag)
}

// Hide excludes the tag from default listings and marks it known.
func (r *TagRegistry) Hide(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[tag] = struct{}{}
	r.hidden[tag] = struct{}{}
}

// Unhide restores the tag to default listings.
func (r *TagRegistry) Unhide(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hidden, tag)
}

// IsHidden reports whether the tag is hidden.
func (r *TagRegistry) IsHidden(tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.hidden[tag]
	return ok
}

// SetSelection replaces the active tag filter.
func (r *TagRegistry) SetSelection(sel []string) {
	norm := tags.Normalize(sel)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range norm {
		r.known[t] = struct{}{}
	}
	r.selection = norm
}

// Selection returns a copy of the active tag filter.
func (r *TagRegistry) Selection() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.selection))
	copy(out, r.selection)
	return out
}

// Tags returns every known tag, sorted.
func (r *TagRegistry) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.known))
	for t := range r.known {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// States exports the registry for persistence, one record per known tag,
// sorted by name.
func (r *TagRegistry) States() []TagState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TagState, 0, len(r.known))
	for t := range r.known {
		st := TagState{Name: t}
		if c, ok := r.colors[t]; ok {
			color := c
			st.Color = &color
		}
		_, st.Hidden = r.hidden[t]
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadState replaces the registry contents from persisted records.
func (r *TagRegistry) LoadState(states []TagState, selection []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.known = make(map[string]struct{}, len(states))
	r.colors = make(map[string]TagColor)
	r.hidden = make(map[string]struct{})
	for _, st := range states {
		r.known[st.Name] = struct{}{}
		if st.Color != nil {
			r.colors[st.Name] = *st.Color
		}
		if st.Hidden {
			r.hidden[st.Name] = struct{}{}
		}
	}
	r.selection = tags.Normalize(selection)
}

// tagState captures one tag's registry entries so a rejected mutation can
// put them back.
type tagState struct {
	tag      string
	known    bool
	color    TagColor
	hasColor bool
	hidden   bool
}

// mutationSnapshot is everything phase one changes, captured beforehand.
type mutationSnapshot struct {
	oldTag    tagState
	newTag    tagState
	selection []string
}

func (r *TagRegistry) captureForMutation(old, new string) mutationSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := mutationSnapshot{
		oldTag:    r.captureTagLocked(old),
		selection: append([]string(nil), r.selection...),
	}
	if new != "" {
		snap.newTag = r.captureTagLocked(new)
	}
	return snap
}

func (r *TagRegistry) captureTagLocked(tag string) tagState {
	st := tagState{tag: tag}
	_, st.known = r.known[tag]
	st.color, st.hasColor = r.colors[tag]
	_, st.hidden = r.hidden[tag]
	return st
}

func (r *TagRegistry) restoreMutation(snap mutationSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.restoreTagLocked(snap.oldTag)
	if snap.newTag.tag != "" {
		r.restoreTagLocked(snap.newTag)
	}
	r.selection = append([]string(nil), snap.selection...)
}

func (r *TagRegistry) restoreTagLocked(st tagState) {
	if st.known {
		r.known[st.tag] = struct{}{}
	} else {
		delete(r.known, st.tag)
	}
	if st.hasColor {
		r.colors[st.tag] = st.color
	} else {
		delete(r.colors, st.tag)
	}
	if st.hidden {
		r.hidden[st.tag] = struct{}{}
	} else {
		delete(r.hidden, st.tag)
	}
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, t := range list {
		if t != s {
			out = append(out, t)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, t := range list {
		if t == s {
			return true
		}
	}
	return false
}
