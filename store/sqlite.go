package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/projdex/projdex/index"
	"github.com/projdex/projdex/internal/fileutil"
)

// SQLiteStore persists snapshots in a single database file. Every save
// replaces the previous snapshot inside one transaction, the database
// analog of the JSON store's whole-file replace.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := fileutil.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	// WAL keeps concurrent readers cheap
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Performance pragmas + schema in a single batch
	_, err = db.Exec(`
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;

		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			tags TEXT NOT NULL,
			mtime INTEGER NOT NULL,
			size INTEGER NOT NULL,
			created INTEGER,
			git_commits INTEGER,
			git_last_commit INTEGER
		);
		CREATE TABLE IF NOT EXISTS tag_states (
			name TEXT PRIMARY KEY,
			color TEXT,
			hidden INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_projects_path ON projects(path);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.checkSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) checkSchema() error {
	var version string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return nil // fresh database
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	n, err := strconv.Atoi(version)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", version, err)
	}
	return checkSchemaVersion(n)
}

func (s *SQLiteStore) Load(ctx context.Context) (*index.Snapshot, error) {
	var initialized string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'saved_at'").Scan(&initialized)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}

	snap := &index.Snapshot{}
	if t, err := time.Parse(time.RFC3339Nano, initialized); err == nil {
		snap.SavedAt = t
	}

	if err := s.loadMetaJSON(ctx, "selection", &snap.Selection); err != nil {
		return nil, err
	}
	if err := s.loadMetaJSON(ctx, "watched_dirs", &snap.WatchedDirs); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, color, hidden FROM tag_states ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read tag states: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st index.TagState
		var color sql.NullString
		var hidden int
		if err := rows.Scan(&st.Name, &color, &hidden); err != nil {
			return nil, fmt.Errorf("failed to scan tag state: %w", err)
		}
		if color.Valid {
			var c index.TagColor
			if err := json.Unmarshal([]byte(color.String), &c); err != nil {
				return nil, fmt.Errorf("failed to decode color for %q: %w", st.Name, err)
			}
			st.Color = &c
		}
		st.Hidden = hidden != 0
		snap.Tags = append(snap.Tags, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT id, name, path, tags, mtime, size, created, git_commits, git_last_commit
		FROM projects ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var p index.Project
		var tagsJSON string
		var mtime int64
		var created, lastCommit, commits sql.NullInt64
		if err := prows.Scan(&p.ID, &p.Name, &p.Path, &tagsJSON, &mtime, &p.Size, &created, &commits, &lastCommit); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for %s: %w", p.Path, err)
		}
		p.ModTime = time.Unix(0, mtime)
		if created.Valid {
			p.Created = time.Unix(0, created.Int64)
		}
		if commits.Valid {
			p.GitCommits = int(commits.Int64)
		}
		if lastCommit.Valid {
			p.GitLastCommit = time.Unix(0, lastCommit.Int64)
		}
		snap.Projects = append(snap.Projects, p)
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *SQLiteStore) loadMetaJSON(ctx context.Context, key string, dst interface{}) error {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read meta %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return fmt.Errorf("failed to decode meta %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap *index.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM projects"); err != nil {
		return fmt.Errorf("failed to clear projects: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tag_states"); err != nil {
		return fmt.Errorf("failed to clear tag states: %w", err)
	}

	for _, p := range snap.Projects {
		tagsJSON, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags for %s: %w", p.Path, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO projects (id, name, path, tags, mtime, size, created, git_commits, git_last_commit)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, string(p.ID), p.Name, p.Path, string(tagsJSON), p.ModTime.UnixNano(), p.Size,
			nanosOrNil(p.Created), p.GitCommits, nanosOrNil(p.GitLastCommit))
		if err != nil {
			return fmt.Errorf("failed to insert project %s: %w", p.Path, err)
		}
	}

	for _, st := range snap.Tags {
		var color interface{}
		if st.Color != nil {
			data, err := json.Marshal(st.Color)
			if err != nil {
				return fmt.Errorf("failed to encode color for %q: %w", st.Name, err)
			}
			color = string(data)
		}
		hidden := 0
		if st.Hidden {
			hidden = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tag_states (name, color, hidden) VALUES (?, ?, ?)
		`, st.Name, color, hidden)
		if err != nil {
			return fmt.Errorf("failed to insert tag state %q: %w", st.Name, err)
		}
	}

	meta := map[string]string{
		"schema_version": fmt.Sprint(SchemaVersion),
		"saved_at":       snap.SavedAt.Format(time.RFC3339Nano),
	}
	for key, v := range map[string]interface{}{
		"selection":    snap.Selection,
		"watched_dirs": snap.WatchedDirs,
	} {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode meta %q: %w", key, err)
		}
		meta[key] = string(data)
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)
		`, key, value); err != nil {
			return fmt.Errorf("failed to write meta %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nanosOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}
