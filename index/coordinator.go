package index

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/projdex/projdex/cache"
	"github.com/projdex/projdex/tags"
)

// MutationKind distinguishes the two cross-project mutations.
type MutationKind string

const (
	MutationDelete MutationKind = "delete"
	MutationRename MutationKind = "rename"
)

// MutationResult describes a finished cross-project mutation.
type MutationResult struct {
	Kind      MutationKind
	Tag       string
	NewTag    string // rename only
	Affected  int    // projects the merge touched
	Recovered bool   // guard rejected the merge and restored the snapshot
	Err       error
}

// Coordinator runs tag-wide mutations in two phases. Phase one mutates
// the visible registry state immediately on the caller's goroutine and
// snapshots the affected projects. Phase two recomputes each affected
// project's tag set in the background, validates the batch against the
// snapshot, and merges it back through TagIndex.UpdateTags, the single
// writer for tag postings. A merge the guard rejects restores the phase
// one registry state and never touches the index or the tag source.
type Coordinator struct {
	idx         *TagIndex
	reg         *TagRegistry
	src         tags.TagSource
	cache       *cache.MetadataCache
	requestSave func()

	// recompute derives a project's post-mutation tag set. Replaceable
	// in tests to exercise the merge guard.
	recompute func(kind MutationKind, p Project, tag, newTag string) []string

	cbMu       sync.Mutex
	onComplete func(MutationResult)

	runMu sync.Mutex // serializes phase-two work
	wg    sync.WaitGroup

	statsMu    sync.Mutex
	recoveries int
}

func NewCoordinator(idx *TagIndex, reg *TagRegistry, src tags.TagSource, c *cache.MetadataCache, requestSave func()) *Coordinator {
	if requestSave == nil {
		requestSave = func() {}
	}
	return &Coordinator{
		idx:         idx,
		reg:         reg,
		src:         src,
		cache:       c,
		requestSave: requestSave,
		recompute:   defaultRecompute,
	}
}

// SetOnComplete registers a callback fired after every mutation settles,
// including fast paths and guard rejections.
func (c *Coordinator) SetOnComplete(fn func(MutationResult)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onComplete = fn
}

// Wait blocks until all in-flight background phases have settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Recoveries reports how many merges the guard has rejected.
func (c *Coordinator) Recoveries() int {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.recoveries
}

// DeleteTagEverywhere removes tag from the registry immediately and from
// every project in the background. With no affected projects only the
// registry cleanup happens and no goroutine is spawned.
func (c *Coordinator) DeleteTagEverywhere(ctx context.Context, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fmt.Errorf("tag name is empty")
	}

	regSnap := c.reg.captureForMutation(tag, "")
	c.reg.Remove(tag)

	affected := c.idx.ProjectsForTag(tag)
	if len(affected) == 0 {
		c.requestSave()
		c.complete(MutationResult{Kind: MutationDelete, Tag: tag})
		return nil
	}

	c.wg.Add(1)
	go c.reconcile(MutationDelete, tag, "", affected, regSnap)
	return nil
}

// RenameTagEverywhere moves registry state from old to new immediately
// and rewrites every affected project's tag set in the background.
func (c *Coordinator) RenameTagEverywhere(ctx context.Context, old, new string) error {
	old = strings.TrimSpace(old)
	new = strings.TrimSpace(new)
	if old == "" || new == "" {
		return fmt.Errorf("tag name is empty")
	}
	if old == new {
		return fmt.Errorf("tag is already named %q", new)
	}

	regSnap := c.reg.captureForMutation(old, new)
	c.reg.Rename(old, new)

	affected := c.idx.ProjectsForTag(old)
	if len(affected) == 0 {
		c.requestSave()
		c.complete(MutationResult{Kind: MutationRename, Tag: old, NewTag: new})
		return nil
	}

	c.wg.Add(1)
	go c.reconcile(MutationRename, old, new, affected, regSnap)
	return nil
}

// reconcile is phase two. The snapshot carries the full pre-mutation tag
// set of every affected project; merges are computed against it, not
// against live state. Detached from the caller's context on purpose: a
// mutation once started must settle even if the trigger goes away.
func (c *Coordinator) reconcile(kind MutationKind, tag, newTag string, snapshot []Project, regSnap mutationSnapshot) {
	defer c.wg.Done()
	c.runMu.Lock()
	defer c.runMu.Unlock()

	proposed := make([][]string, len(snapshot))
	for i, p := range snapshot {
		proposed[i] = c.recompute(kind, p, tag, newTag)
	}

	if err := validateMerge(kind, tag, newTag, snapshot, proposed); err != nil {
		c.reg.restoreMutation(regSnap)
		c.statsMu.Lock()
		c.recoveries++
		c.statsMu.Unlock()
		log.Printf("Warning: rejected %s of tag %q: %v", kind, tag, err)
		c.requestSave()
		c.complete(MutationResult{
			Kind:      kind,
			Tag:       tag,
			NewTag:    newTag,
			Affected:  len(snapshot),
			Recovered: true,
			Err:       err,
		})
		return
	}

	ctx := context.Background()
	applied := 0
	for i, p := range snapshot {
		if err := c.src.WriteTags(ctx, p.Path, proposed[i]); err != nil {
			log.Printf("Warning: failed to write tags for %s: %v", p.Path, err)
		}
		// Projects removed since the snapshot are skipped here.
		if c.idx.UpdateTags(p.ID, p.Tags, proposed[i]) {
			applied++
		}
		c.cache.Invalidate(p.Path)
	}

	c.requestSave()
	c.complete(MutationResult{Kind: kind, Tag: tag, NewTag: newTag, Affected: applied})
}

func (c *Coordinator) complete(res MutationResult) {
	c.cbMu.Lock()
	fn := c.onComplete
	c.cbMu.Unlock()
	if fn != nil {
		fn(res)
	}
}

func defaultRecompute(kind MutationKind, p Project, tag, newTag string) []string {
	out := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		switch {
		case t != tag:
			out = append(out, t)
		case kind == MutationRename:
			out = append(out, newTag)
		}
	}
	return tags.Normalize(out)
}

// validateMerge is the data-loss guard. The recomputed batch may only
// shrink the snapshot's tag population by what the mutation itself
// accounts for: one tag per affected project for a delete, dedup overlap
// for a rename. Anything beyond that means the recompute went wrong, and
// committing it would destroy user data.
func validateMerge(kind MutationKind, tag, newTag string, snapshot []Project, proposed [][]string) error {
	if len(proposed) != len(snapshot) {
		return fmt.Errorf("recompute covered %d of %d projects", len(proposed), len(snapshot))
	}

	beforeTags, afterTags := 0, 0
	carriers, dedup := 0, 0
	expectNonEmpty, gotNonEmpty := 0, 0

	for i, p := range snapshot {
		beforeTags += len(p.Tags)
		afterTags += len(proposed[i])

		hasTag := p.HasTag(tag)
		if hasTag {
			carriers++
			if kind == MutationRename && p.HasTag(newTag) {
				dedup++
			}
		}

		remaining := len(p.Tags)
		if kind == MutationDelete && hasTag {
			remaining--
		}
		if remaining > 0 {
			expectNonEmpty++
		}
		if len(proposed[i]) > 0 {
			gotNonEmpty++
		}
	}

	minAfter := beforeTags
	switch kind {
	case MutationDelete:
		minAfter = beforeTags - carriers
	case MutationRename:
		minAfter = beforeTags - dedup
	}

	if afterTags < minAfter {
		return fmt.Errorf("tag count would drop from %d to %d, below the expected %d",
			beforeTags, afterTags, minAfter)
	}
	if gotNonEmpty < expectNonEmpty {
		return fmt.Errorf("%d of %d projects would lose all tags",
			expectNonEmpty-gotNonEmpty, len(snapshot))
	}
	return nil
}
