package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projdex.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}
	checkSnapshot(t, got)
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "projdex.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load of empty store failed: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot for empty store, got %+v", snap)
	}
}

func TestSQLiteStore_ReopenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projdex.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load after reopen: %v", err)
	}
	checkSnapshot(t, got)
}

func TestSQLiteStore_SaveReplacesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projdex.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}

	next := sampleSnapshot()
	next.Projects = next.Projects[:1]
	next.Tags = next.Tags[:1]
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
	if len(got.Tags) != 1 {
		t.Errorf("expected 1 tag state after overwrite, got %d", len(got.Tags))
	}
}

func TestSQLiteStore_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projdex.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}
	if _, err := store.db.Exec("UPDATE meta SET value = '99' WHERE key = 'schema_version'"); err != nil {
		t.Fatalf("failed to bump schema version: %v", err)
	}
	store.Close()

	_, err = NewSQLiteStore(path)
	if err == nil || !strings.Contains(err.Error(), "unsupported schema version") {
		t.Errorf("expected schema version error, got %v", err)
	}
}
