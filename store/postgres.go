package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/projdex/projdex/index"
)

// PostgresStore keeps snapshots for any number of workspaces in one
// database. Rows are scoped by a short hash of the workspace root so
// several checkouts can share a server without colliding.
type PostgresStore struct {
	pool      *pgxpool.Pool
	workspace string
}

func NewPostgresStore(ctx context.Context, dsn, workspaceRoot string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	// Simple protocol avoids prepared statement cache collisions when
	// stores are opened and closed per command
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	s := &PostgresStore{pool: pool, workspace: hashWorkspace(workspaceRoot)}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS projdex_meta (
			workspace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (workspace, key)
		)`,
		`CREATE TABLE IF NOT EXISTS projdex_projects (
			workspace TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			tags JSONB NOT NULL,
			mtime BIGINT NOT NULL,
			size BIGINT NOT NULL,
			created BIGINT,
			git_commits BIGINT,
			git_last_commit BIGINT,
			PRIMARY KEY (workspace, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projdex_projects_path ON projdex_projects(workspace, path)`,
		`CREATE TABLE IF NOT EXISTS projdex_tag_states (
			workspace TEXT NOT NULL,
			name TEXT NOT NULL,
			color JSONB,
			hidden BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (workspace, name)
		)`,
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (*index.Snapshot, error) {
	var savedAt string
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM projdex_meta WHERE workspace = $1 AND key = 'saved_at'
	`, s.workspace).Scan(&savedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}

	var version string
	err = s.pool.QueryRow(ctx, `
		SELECT value FROM projdex_meta WHERE workspace = $1 AND key = 'schema_version'
	`, s.workspace).Scan(&version)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	if err == nil {
		n, perr := strconv.Atoi(version)
		if perr != nil {
			return nil, fmt.Errorf("invalid schema version %q: %w", version, perr)
		}
		if err := checkSchemaVersion(n); err != nil {
			return nil, err
		}
	}

	snap := &index.Snapshot{}
	if t, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
		snap.SavedAt = t
	}

	if err := s.loadMetaJSON(ctx, "selection", &snap.Selection); err != nil {
		return nil, err
	}
	if err := s.loadMetaJSON(ctx, "watched_dirs", &snap.WatchedDirs); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT name, color, hidden FROM projdex_tag_states
		WHERE workspace = $1 ORDER BY name
	`, s.workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to read tag states: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st index.TagState
		var color *string
		if err := rows.Scan(&st.Name, &color, &st.Hidden); err != nil {
			return nil, fmt.Errorf("failed to scan tag state: %w", err)
		}
		if color != nil {
			var c index.TagColor
			if err := json.Unmarshal([]byte(*color), &c); err != nil {
				return nil, fmt.Errorf("failed to decode color for %q: %w", st.Name, err)
			}
			st.Color = &c
		}
		snap.Tags = append(snap.Tags, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.pool.Query(ctx, `
		SELECT id, name, path, tags, mtime, size, created, git_commits, git_last_commit
		FROM projdex_projects WHERE workspace = $1 ORDER BY id
	`, s.workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var p index.Project
		var tagsJSON string
		var mtime int64
		var created, commits, lastCommit *int64
		if err := prows.Scan(&p.ID, &p.Name, &p.Path, &tagsJSON, &mtime, &p.Size, &created, &commits, &lastCommit); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for %s: %w", p.Path, err)
		}
		p.ModTime = time.Unix(0, mtime)
		if created != nil {
			p.Created = time.Unix(0, *created)
		}
		if commits != nil {
			p.GitCommits = int(*commits)
		}
		if lastCommit != nil {
			p.GitLastCommit = time.Unix(0, *lastCommit)
		}
		snap.Projects = append(snap.Projects, p)
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *PostgresStore) loadMetaJSON(ctx context.Context, key string, dst interface{}) error {
	var value string
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM projdex_meta WHERE workspace = $1 AND key = $2
	`, s.workspace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) Save(ctx context.Context, snap *index.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"projdex_projects", "projdex_tag_states", "projdex_meta"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE workspace = $1", s.workspace); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, p := range snap.Projects {
		tagsJSON, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags for %s: %w", p.Path, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO projdex_projects (workspace, id, name, path, tags, mtime, size, created, git_commits, git_last_commit)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, s.workspace, string(p.ID), p.Name, p.Path, string(tagsJSON), p.ModTime.UnixNano(), p.Size,
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
		_, err = tx.Exec(ctx, `
			INSERT INTO projdex_tag_states (workspace, name, color, hidden)
			VALUES ($1, $2, $3, $4)
		`, s.workspace, st.Name, color, st.Hidden)
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
		if _, err := tx.Exec(ctx, `
			INSERT INTO projdex_meta (workspace, key, value) VALUES ($1, $2, $3)
		`, s.workspace, key, value); err != nil {
			return fmt.Errorf("failed to write meta %q: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
