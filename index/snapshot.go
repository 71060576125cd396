package index

import (
	"context"
	"time"
)

// TagState is one tag's persisted registry entry.
type TagState struct {
	Name   string    `json:"name"`
	Color  *TagColor `json:"color,omitempty"`
	Hidden bool      `json:"hidden,omitempty"`
}

// Snapshot is a deep copy of everything worth persisting. It shares no
// state with the live engine: the persistence coordinator hands it to a
// background writer without further locking.
type Snapshot struct {
	SavedAt     time.Time
	Tags        []TagState
	Selection   []string
	WatchedDirs []string
	Projects    []Project
}

// SnapshotStore persists snapshots. Implementations live in the store
// package; Load returns (nil, nil) when no prior state exists.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Close() error
}
