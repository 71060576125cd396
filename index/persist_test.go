package index

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory SnapshotStore counting writes.
type memStore struct {
	mu      sync.Mutex
	saved   []*Snapshot
	loadRet *Snapshot
	loadErr error
	saveErr error
	closed  bool
}

func (s *memStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRet, s.loadErr
}

func (s *memStore) Save(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, snap)
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func testSnapshotFn() *Snapshot {
	return &Snapshot{SavedAt: time.Now()}
}

func TestRequestSaveDebounces(t *testing.T) {
	st := &memStore{}
	p := NewPersister(st, testSnapshotFn, 40*time.Millisecond)

	p.RequestSave()
	p.RequestSave()

	time.Sleep(250 * time.Millisecond)

	if got := st.saveCount(); got != 1 {
		t.Errorf("saves = %d, want exactly 1 for two requests in one window", got)
	}

	stats := p.Stats()
	if stats.Saves != 1 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want one clean save", stats)
	}
}

func TestSeparatedRequestsSaveTwice(t *testing.T) {
	st := &memStore{}
	p := NewPersister(st, testSnapshotFn, 30*time.Millisecond)

	p.RequestSave()
	time.Sleep(150 * time.Millisecond)
	p.RequestSave()
	time.Sleep(150 * time.Millisecond)

	if got := st.saveCount(); got != 2 {
		t.Errorf("saves = %d, want 2 for requests in separate windows", got)
	}
}

func TestForceSaveCancelsPendingDebounce(t *testing.T) {
	st := &memStore{}
	p := NewPersister(st, testSnapshotFn, time.Hour)

	p.RequestSave() // would fire in an hour
	if err := p.ForceSave(context.Background()); err != nil {
		t.Fatalf("ForceSave failed: %v", err)
	}

	if got := st.saveCount(); got != 1 {
		t.Errorf("saves = %d, want 1 immediate save", got)
	}

	// The debounced one must not fire later on top of it.
	time.Sleep(100 * time.Millisecond)
	if got := st.saveCount(); got != 1 {
		t.Errorf("saves grew to %d after ForceSave", got)
	}
}

func TestCloseFlushesFinalSave(t *testing.T) {
	st := &memStore{}
	p := NewPersister(st, testSnapshotFn, time.Hour)

	p.RequestSave()
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := st.saveCount(); got == 0 {
		t.Error("Close lost the pending save")
	}
}

func TestSaveErrorsAreCountedNotFatal(t *testing.T) {
	st := &memStore{saveErr: errors.New("disk full")}
	p := NewPersister(st, testSnapshotFn, 20*time.Millisecond)

	p.RequestSave()
	time.Sleep(150 * time.Millisecond)

	stats := p.Stats()
	if stats.Errors != 1 || stats.Saves != 0 {
		t.Errorf("stats = %+v, want one counted error", stats)
	}

	// A later save succeeds once the store recovers.
	st.mu.Lock()
	st.saveErr = nil
	st.mu.Unlock()

	if err := p.ForceSave(context.Background()); err != nil {
		t.Fatalf("ForceSave after recovery failed: %v", err)
	}
	if p.Stats().Saves != 1 {
		t.Errorf("Saves = %d after recovery, want 1", p.Stats().Saves)
	}
}
