package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/projdex/projdex/index"
	"github.com/projdex/projdex/internal/fileutil"
)

const (
	// StateFileName holds the tag registry, selection, and watched dirs.
	StateFileName = "state.json"
	// ProjectsFileName holds the project records.
	ProjectsFileName = "projects.json"

	lockFileName = "store.lock"
)

// statePayload is the checksummed portion of the state file.
type statePayload struct {
	Tags        []index.TagState `json:"tags"`
	Selection   []string         `json:"selection,omitempty"`
	WatchedDirs []string         `json:"watched_dirs,omitempty"`
}

type stateFile struct {
	SchemaVersion int       `json:"schema_version"`
	SavedAt       time.Time `json:"saved_at"`
	Checksum      string    `json:"checksum"`
	statePayload
}

// projectsPayload is the checksummed portion of the projects file.
type projectsPayload struct {
	Projects []index.Project `json:"projects"`
}

type projectsFile struct {
	SchemaVersion int       `json:"schema_version"`
	SavedAt       time.Time `json:"saved_at"`
	Checksum      string    `json:"checksum"`
	projectsPayload
}

// JSONStore persists snapshots as two JSON files in a directory. Writes
// serialize fully in memory, go to a temp file, and replace the previous
// file atomically; a failed write leaves the old file intact. A file lock
// guards against concurrent processes, degrading to unlocked operation
// where locking is unavailable.
type JSONStore struct {
	dir          string
	statePath    string
	projectsPath string
	lockPath     string
}

func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{
		dir:          dir,
		statePath:    filepath.Join(dir, StateFileName),
		projectsPath: filepath.Join(dir, ProjectsFileName),
		lockPath:     filepath.Join(dir, lockFileName),
	}
}

func (s *JSONStore) Load(ctx context.Context) (*index.Snapshot, error) {
	unlock := s.lock(fileutil.LockShared)
	defer unlock()

	state, err := s.readState()
	if err != nil {
		return nil, err
	}
	projects, err := s.readProjects()
	if err != nil {
		return nil, err
	}
	if state == nil && projects == nil {
		return nil, nil
	}

	snap := &index.Snapshot{}
	if state != nil {
		snap.SavedAt = state.SavedAt
		snap.Tags = state.Tags
		snap.Selection = state.Selection
		snap.WatchedDirs = state.WatchedDirs
	}
	if projects != nil {
		snap.Projects = projects.Projects
		if snap.SavedAt.IsZero() {
			snap.SavedAt = projects.SavedAt
		}
	}
	return snap, nil
}

func (s *JSONStore) readState() (*stateFile, error) {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", StateFileName, err)
	}

	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", StateFileName, err)
	}
	if err := checkSchemaVersion(f.SchemaVersion); err != nil {
		return nil, fmt.Errorf("%s: %w", StateFileName, err)
	}
	sum, err := checksumJSON(f.statePayload)
	if err != nil {
		return nil, err
	}
	if sum != f.Checksum {
		return nil, fmt.Errorf("%s: checksum mismatch, file is corrupt", StateFileName)
	}
	return &f, nil
}

func (s *JSONStore) readProjects() (*projectsFile, error) {
	data, err := os.ReadFile(s.projectsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", ProjectsFileName, err)
	}

	var f projectsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ProjectsFileName, err)
	}
	if err := checkSchemaVersion(f.SchemaVersion); err != nil {
		return nil, fmt.Errorf("%s: %w", ProjectsFileName, err)
	}
	sum, err := checksumJSON(f.projectsPayload)
	if err != nil {
		return nil, err
	}
	if sum != f.Checksum {
		return nil, fmt.Errorf("%s: checksum mismatch, file is corrupt", ProjectsFileName)
	}
	return &f, nil
}

func (s *JSONStore) Save(ctx context.Context, snap *index.Snapshot) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	unlock := s.lock(fileutil.LockExclusive)
	defer unlock()

	projects := projectsFile{
		SchemaVersion:   SchemaVersion,
		SavedAt:         snap.SavedAt,
		projectsPayload: projectsPayload{Projects: snap.Projects},
	}
	sum, err := checksumJSON(projects.projectsPayload)
	if err != nil {
		return err
	}
	projects.Checksum = sum
	if err := writeJSONFile(s.projectsPath, &projects); err != nil {
		return err
	}

	state := stateFile{
		SchemaVersion: SchemaVersion,
		SavedAt:       snap.SavedAt,
		statePayload: statePayload{
			Tags:        snap.Tags,
			Selection:   snap.Selection,
			WatchedDirs: snap.WatchedDirs,
		},
	}
	sum, err = checksumJSON(state.statePayload)
	if err != nil {
		return err
	}
	state.Checksum = sum
	return writeJSONFile(s.statePath, &state)
}

func (s *JSONStore) Close() error {
	return nil
}

// lock acquires the store's file lock and returns the release func. When
// the lock file cannot be created or locked, operation proceeds unlocked.
func (s *JSONStore) lock(mode fileutil.LockMode) func() {
	lk, err := fileutil.AcquireLock(s.lockPath, mode, true)
	if err != nil {
		return func() {}
	}
	return func() { _ = lk.Release() }
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	if err := fileutil.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
