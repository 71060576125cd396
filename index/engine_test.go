package index

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/projdex/projdex/tags"
)

func newTestEngine(t *testing.T, st *memStore) (*Engine, *tags.MemorySource) {
	t.Helper()
	src := tags.NewMemorySource()
	e, err := New(Options{
		Source:    src,
		Store:     st,
		SaveDelay: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e, src
}

func TestNewRequiresSourceAndStore(t *testing.T) {
	if _, err := New(Options{Store: &memStore{}}); err == nil {
		t.Error("expected error without a tag source")
	}
	if _, err := New(Options{Source: tags.NewMemorySource()}); err == nil {
		t.Error("expected error without a snapshot store")
	}
}

func TestAddAndRemoveTagWriteThrough(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	e, src := newTestEngine(t, st)
	defer e.Close(ctx)

	p := mkProject("alpha", "go")
	e.UpsertProject(p)

	if err := e.AddTagToProject(ctx, p.ID, "cli"); err != nil {
		t.Fatalf("AddTagToProject failed: %v", err)
	}

	got, _ := e.TagsForProject(p.ID)
	if !reflect.DeepEqual(got, []string{"cli", "go"}) {
		t.Errorf("tags = %v, want [cli go]", got)
	}
	srcTags, err := src.ReadTags(ctx, p.Path)
	if err != nil {
		t.Fatalf("source read failed: %v", err)
	}
	if !reflect.DeepEqual(srcTags, []string{"cli", "go"}) {
		t.Errorf("source tags = %v, want [cli go]", srcTags)
	}

	// Duplicate add is a no-op.
	if err := e.AddTagToProject(ctx, p.ID, "cli"); err != nil {
		t.Fatalf("duplicate add failed: %v", err)
	}

	if err := e.RemoveTagFromProject(ctx, p.ID, "go"); err != nil {
		t.Fatalf("RemoveTagFromProject failed: %v", err)
	}
	got, _ = e.TagsForProject(p.ID)
	if !reflect.DeepEqual(got, []string{"cli"}) {
		t.Errorf("tags after remove = %v, want [cli]", got)
	}

	// Removing an absent tag is a no-op.
	if err := e.RemoveTagFromProject(ctx, p.ID, "go"); err != nil {
		t.Fatalf("absent remove failed: %v", err)
	}
}

func TestAddTagUnknownProject(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &memStore{})
	defer e.Close(ctx)

	err := e.AddTagToProject(ctx, "nope", "go")
	if !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("err = %v, want ErrProjectNotFound", err)
	}
}

func TestAddTagSourceFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	e, src := newTestEngine(t, &memStore{})
	defer e.Close(ctx)

	p := mkProject("alpha")
	e.UpsertProject(p)
	src.SetError(p.Path, errors.New("read-only filesystem"))

	if err := e.AddTagToProject(ctx, p.ID, "go"); err == nil {
		t.Fatal("expected the source write error to surface")
	}
	// The index must not have been touched.
	got, _ := e.TagsForProject(p.ID)
	if len(got) != 0 {
		t.Errorf("tags = %v, want none after failed write", got)
	}
}

func TestLoadStateSeedsEngine(t *testing.T) {
	ctx := context.Background()
	p := mkProject("alpha", "go")
	st := &memStore{loadRet: &Snapshot{
		SavedAt:     time.Now(),
		Tags:        []TagState{{Name: "go", Color: &TagColor{B: 250}}, {Name: "secret", Hidden: true}},
		Selection:   []string{"go"},
		WatchedDirs: []string{"/workspace"},
		Projects:    []Project{p},
	}}

	e, _ := newTestEngine(t, st)
	defer e.Close(ctx)

	if err := e.LoadState(ctx); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}

	if got := e.AllProjects(); len(got) != 1 || got[0].ID != p.ID {
		t.Errorf("projects = %v", got)
	}
	if c, ok := e.TagColor("go"); !ok || c.B != 250 {
		t.Errorf("color = %v ok=%v", c, ok)
	}
	if !e.IsTagHidden("secret") {
		t.Error("hidden flag lost")
	}
	if got := e.Selection(); !reflect.DeepEqual(got, []string{"go"}) {
		t.Errorf("selection = %v", got)
	}
	if got := e.WatchedDirs(); !reflect.DeepEqual(got, []string{"/workspace"}) {
		t.Errorf("watched dirs = %v", got)
	}
}

func TestLoadStateMissingIsEmptyStart(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &memStore{})
	defer e.Close(ctx)

	if err := e.LoadState(ctx); err != nil {
		t.Fatalf("LoadState on empty store failed: %v", err)
	}
	if got := e.AllProjects(); len(got) != 0 {
		t.Errorf("projects = %v, want none", got)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &memStore{})
	defer e.Close(ctx)

	p := mkProject("alpha", "go")
	e.UpsertProject(p)

	snap := e.Snapshot()
	if len(snap.Projects) != 1 {
		t.Fatalf("snapshot projects = %d, want 1", len(snap.Projects))
	}
	snap.Projects[0].Tags[0] = "mutated"

	got, _ := e.TagsForProject(p.ID)
	if got[0] != "go" {
		t.Error("snapshot shares state with the live index")
	}
}

func TestCloseFlushesAndClosesStore(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	e, _ := newTestEngine(t, st)

	e.UpsertProject(mkProject("alpha", "go"))
	if err := e.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if st.saveCount() == 0 {
		t.Error("Close lost the pending save")
	}
	st.mu.Lock()
	closed := st.closed
	st.mu.Unlock()
	if !closed {
		t.Error("store not closed")
	}

	// The final snapshot carries the project.
	st.mu.Lock()
	last := st.saved[len(st.saved)-1]
	st.mu.Unlock()
	if len(last.Projects) != 1 {
		t.Errorf("final snapshot has %d projects, want 1", len(last.Projects))
	}
}

func TestEngineStats(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, &memStore{})
	defer e.Close(ctx)

	e.UpsertProject(mkProject("alpha", "go", "cli"))
	e.UpsertProject(mkProject("beta", "go"))

	stats := e.Stats()
	if stats.Projects != 2 || stats.Tags != 2 {
		t.Errorf("stats = %+v, want 2 projects, 2 distinct tags", stats)
	}
}
