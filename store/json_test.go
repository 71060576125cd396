package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/projdex/projdex/index"
)

func sampleSnapshot() *index.Snapshot {
	return &index.Snapshot{
		SavedAt: time.Now().UTC().Truncate(time.Millisecond),
		Tags: []index.TagState{
			{Name: "cli", Color: &index.TagColor{R: 30, G: 120, B: 200, A: 255, Name: "blue"}},
			{Name: "secret", Hidden: true},
		},
		Selection:   []string{"cli"},
		WatchedDirs: []string{"/workspace"},
		Projects: []index.Project{
			{
				ID:            "p1",
				Name:          "alpha",
				Path:          "/workspace/alpha",
				Tags:          []string{"cli", "go"},
				ModTime:       time.Unix(0, 1700000000123456789),
				Size:          4096,
				Created:       time.Unix(0, 1690000000000000000),
				GitCommits:    42,
				GitLastCommit: time.Unix(0, 1699990000000000000),
			},
			{
				ID:      "p2",
				Name:    "beta",
				Path:    "/workspace/beta",
				ModTime: time.Unix(0, 1700000001000000000),
				Size:    512,
			},
		},
	}
}

// checkSnapshot verifies the fields a store must round-trip. Times are
// compared as instants because JSON drops the monotonic clock reading.
func checkSnapshot(t *testing.T, got *index.Snapshot) {
	t.Helper()
	want := sampleSnapshot()

	if got == nil {
		t.Fatal("expected a snapshot, got nil")
	}
	if len(got.Tags) != 2 {
		t.Fatalf("expected 2 tag states, got %d", len(got.Tags))
	}
	if got.Tags[0].Name != "cli" || got.Tags[0].Color == nil || got.Tags[0].Color.B != 200 {
		t.Errorf("cli tag state wrong: %+v", got.Tags[0])
	}
	if got.Tags[1].Name != "secret" || !got.Tags[1].Hidden {
		t.Errorf("secret tag state wrong: %+v", got.Tags[1])
	}
	if len(got.Selection) != 1 || got.Selection[0] != "cli" {
		t.Errorf("selection wrong: %v", got.Selection)
	}
	if len(got.WatchedDirs) != 1 || got.WatchedDirs[0] != "/workspace" {
		t.Errorf("watched dirs wrong: %v", got.WatchedDirs)
	}

	if len(got.Projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(got.Projects))
	}
	p := got.Projects[0]
	w := want.Projects[0]
	if p.ID != w.ID || p.Name != w.Name || p.Path != w.Path {
		t.Errorf("project identity wrong: %+v", p)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "cli" || p.Tags[1] != "go" {
		t.Errorf("project tags wrong: %v", p.Tags)
	}
	if !p.ModTime.Equal(w.ModTime) || p.Size != w.Size {
		t.Errorf("project stat wrong: mtime=%v size=%d", p.ModTime, p.Size)
	}
	if !p.Created.Equal(w.Created) {
		t.Errorf("created wrong: %v", p.Created)
	}
	if p.GitCommits != 42 || !p.GitLastCommit.Equal(w.GitLastCommit) {
		t.Errorf("git stats wrong: commits=%d last=%v", p.GitCommits, p.GitLastCommit)
	}
	if got.Projects[1].GitCommits != 0 || !got.Projects[1].Created.IsZero() {
		t.Errorf("zero-value fields did not survive: %+v", got.Projects[1])
	}
}

func TestJSONStore_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(dir)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}
	checkSnapshot(t, got)

	for _, name := range []string{StateFileName, ProjectsFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestJSONStore_LoadMissing(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "never-saved"))

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load of missing store failed: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot for missing store, got %+v", snap)
	}
}

func TestJSONStore_ChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(dir)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	// Edit the payload without updating the checksum
	path := filepath.Join(dir, ProjectsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read projects file: %v", err)
	}
	tampered := strings.Replace(string(data), `"alpha"`, `"tampered"`, 1)
	if tampered == string(data) {
		t.Fatal("fixture did not contain expected project name")
	}
	if err := os.WriteFile(path, []byte(tampered), 0644); err != nil {
		t.Fatalf("failed to write tampered file: %v", err)
	}

	_, err = store.Load(ctx)
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("expected checksum mismatch error, got %v", err)
	}
}

func TestJSONStore_SchemaVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(dir)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	path := filepath.Join(dir, StateFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read state file: %v", err)
	}
	bumped := strings.Replace(string(data), `"schema_version": 1`, `"schema_version": 99`, 1)
	if bumped == string(data) {
		t.Fatal("fixture did not contain expected schema version")
	}
	if err := os.WriteFile(path, []byte(bumped), 0644); err != nil {
		t.Fatalf("failed to write bumped file: %v", err)
	}

	_, err = store.Load(ctx)
	if err == nil || !strings.Contains(err.Error(), "unsupported schema version") {
		t.Errorf("expected schema version error, got %v", err)
	}
}

func TestJSONStore_PartialState(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(dir)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, StateFileName)); err != nil {
		t.Fatalf("failed to remove state file: %v", err)
	}

	// Projects alone still load; tag state is simply absent
	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load with missing state file failed: %v", err)
	}
	if snap == nil || len(snap.Projects) != 2 {
		t.Fatalf("expected 2 projects, got %+v", snap)
	}
	if len(snap.Tags) != 0 || len(snap.Selection) != 0 {
		t.Errorf("expected empty tag state, got tags=%v selection=%v", snap.Tags, snap.Selection)
	}
}

func TestJSONStore_SaveReplacesPrevious(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(dir)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	next := sampleSnapshot()
	next.Projects = next.Projects[:1]
	next.Selection = nil
	if err := store.Save(ctx, next); err != nil {
		t.Fatalf("failed to save second snapshot: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}
	if len(got.Projects) != 1 {
		t.Errorf("expected 1 project after overwrite, got %d", len(got.Projects))
	}
	if len(got.Selection) != 0 {
		t.Errorf("expected empty selection after overwrite, got %v", got.Selection)
	}
}
