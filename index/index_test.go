package index

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

func mkProject(name string, tagList ...string) Project {
	return Project{
		ID:      NewProjectID(),
		Name:    name,
		Path:    "/projects/" + name,
		Tags:    tagList,
		ModTime: time.Now(),
		Size:    int64(len(name)),
	}
}

func TestIndexStaysConsistent(t *testing.T) {
	ix := NewTagIndex()

	a := mkProject("alpha", "go", "cli")
	b := mkProject("beta", "go")
	c := mkProject("gamma", "rust")

	ix.Upsert(a)
	ix.Upsert(b)
	ix.Upsert(c)
	if err := ix.checkConsistent(); err != nil {
		t.Fatalf("after upserts: %v", err)
	}

	// Replace alpha with a different tag set.
	a.Tags = []string{"cli", "infra"}
	ix.Upsert(a)
	if err := ix.checkConsistent(); err != nil {
		t.Fatalf("after replacing upsert: %v", err)
	}

	ix.UpdateTags(b.ID, []string{"go"}, []string{"go", "web"})
	if err := ix.checkConsistent(); err != nil {
		t.Fatalf("after UpdateTags: %v", err)
	}

	ix.Remove(c.ID)
	if err := ix.checkConsistent(); err != nil {
		t.Fatalf("after Remove: %v", err)
	}

	// rust had a single carrier: its posting set must be gone entirely.
	if got := ix.ProjectsForTag("rust"); len(got) != 0 {
		t.Errorf("rust still has %d postings after its only carrier left", len(got))
	}
}

func TestUpdateTagsIsIdempotent(t *testing.T) {
	ix := NewTagIndex()
	p := mkProject("alpha", "go", "cli")
	ix.Upsert(p)

	old := []string{"cli", "go"}
	new := []string{"go", "web"}

	ix.UpdateTags(p.ID, old, new)
	first, _ := ix.TagsForProject(p.ID)

	ix.UpdateTags(p.ID, old, new)
	second, _ := ix.TagsForProject(p.ID)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("second application changed tags: %v -> %v", first, second)
	}
	if err := ix.checkConsistent(); err != nil {
		t.Errorf("after repeated UpdateTags: %v", err)
	}
	if got := ix.ProjectsForTag("cli"); len(got) != 0 {
		t.Errorf("cli postings survived: %d", len(got))
	}
}

func TestUpdateTagsSkipsUnknownProject(t *testing.T) {
	ix := NewTagIndex()
	if ix.UpdateTags("no-such-id", []string{"go"}, []string{"web"}) {
		t.Error("UpdateTags reported success for an unknown id")
	}
	if err := ix.checkConsistent(); err != nil {
		t.Errorf("unknown-id update dirtied the index: %v", err)
	}
}

func TestUpdateTagsScrubsStaleCallerView(t *testing.T) {
	ix := NewTagIndex()
	p := mkProject("alpha", "go", "cli")
	ix.Upsert(p)

	// Caller's old view omits "cli"; the stored record is authoritative
	// and the posting must still be scrubbed.
	ix.UpdateTags(p.ID, []string{"go"}, []string{"web"})

	if err := ix.checkConsistent(); err != nil {
		t.Fatalf("stale caller view broke the index: %v", err)
	}
	got, _ := ix.TagsForProject(p.ID)
	if !reflect.DeepEqual(got, []string{"web"}) {
		t.Errorf("tags = %v, want [web]", got)
	}
}

func TestRebuildReplacesEverything(t *testing.T) {
	ix := NewTagIndex()
	ix.Upsert(mkProject("old", "stale"))

	fresh := []Project{
		mkProject("alpha", "go"),
		mkProject("beta", "go", "cli"),
	}
	ix.Rebuild(fresh)

	if err := ix.checkConsistent(); err != nil {
		t.Fatalf("after rebuild: %v", err)
	}
	if ix.Len() != 2 {
		t.Errorf("Len = %d, want 2", ix.Len())
	}
	if got := ix.ProjectsForTag("stale"); len(got) != 0 {
		t.Errorf("stale tag survived rebuild: %v", got)
	}
	if got := ix.ProjectsForTag("go"); len(got) != 2 {
		t.Errorf("go carriers = %d, want 2", len(got))
	}
}

func TestQueriesAreSortedAndCloned(t *testing.T) {
	ix := NewTagIndex()
	ix.Upsert(mkProject("zeta", "go"))
	ix.Upsert(mkProject("alpha", "go"))
	ix.Upsert(mkProject("mid", "go"))

	got := ix.ProjectsForTag("go")
	names := make([]string, len(got))
	for i, p := range got {
		names[i] = p.Name
	}
	want := []string{"alpha", "mid", "zeta"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("order = %v, want %v", names, want)
	}

	// Mutating a returned clone must not leak into the index.
	got[0].Tags[0] = "mutated"
	again := ix.ProjectsForTag("go")
	if again[0].Tags[0] != "go" {
		t.Error("query result aliases index state")
	}
}

func TestProjectByPathFollowsMoves(t *testing.T) {
	ix := NewTagIndex()
	p := mkProject("alpha", "go")
	ix.Upsert(p)

	moved := p.Clone()
	moved.Path = "/elsewhere/alpha"
	ix.Upsert(moved)

	if _, ok := ix.ProjectByPath(p.Path); ok {
		t.Error("old path still resolves")
	}
	got, ok := ix.ProjectByPath("/elsewhere/alpha")
	if !ok || got.ID != p.ID {
		t.Errorf("new path resolves to %+v, ok=%v", got, ok)
	}
}

func TestAllTagsCounts(t *testing.T) {
	ix := NewTagIndex()
	ix.Upsert(mkProject("a", "go", "cli"))
	ix.Upsert(mkProject("b", "go"))

	got := ix.AllTags()
	want := []TagCount{{Tag: "cli", Count: 1}, {Tag: "go", Count: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AllTags = %v, want %v", got, want)
	}
}

func TestManyProjectsManyTags(t *testing.T) {
	ix := NewTagIndex()
	for i := 0; i < 200; i++ {
		ix.Upsert(mkProject(
			fmt.Sprintf("p%03d", i),
			fmt.Sprintf("group%d", i%7),
			"all",
		))
	}
	if err := ix.checkConsistent(); err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
	if got := len(ix.ProjectsForTag("all")); got != 200 {
		t.Errorf("all carriers = %d, want 200", got)
	}
	if got := len(ix.ProjectsForTag("group3")); got == 0 {
		t.Error("group3 has no carriers")
	}
}
