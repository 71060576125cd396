package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/projdex/projdex/config"
	"github.com/projdex/projdex/index"
	"github.com/projdex/projdex/indexer"
	"github.com/projdex/projdex/loader"
	"github.com/projdex/projdex/store"
	"github.com/projdex/projdex/tags"
)

// openEngine locates the workspace, loads its config, and returns a
// ready-to-query engine. Callers must closeEngine when done.
func openEngine(ctx context.Context) (*index.Engine, *config.Config, string, error) {
	root, err := config.FindWorkspaceRoot()
	if err != nil {
		return nil, nil, "", err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	st, err := openSnapshotStore(ctx, cfg, root)
	if err != nil {
		return nil, nil, "", err
	}
	eng, err := index.New(index.Options{
		Source:      newTagSource(cfg),
		Store:       st,
		CacheMaxAge: time.Duration(cfg.Cache.MaxAgeMinutes) * time.Minute,
		SaveDelay:   time.Duration(cfg.SaveCfg.DebounceMs) * time.Millisecond,
		WatchedDirs: cfg.WatchedDirs,
	})
	if err != nil {
		st.Close()
		return nil, nil, "", err
	}
	if err := eng.LoadState(ctx); err != nil {
		// Do not close through the engine here: that would flush an
		// empty snapshot over whatever state failed to load.
		st.Close()
		return nil, nil, "", fmt.Errorf("failed to load index state: %w", err)
	}
	return eng, cfg, root, nil
}

func openSnapshotStore(ctx context.Context, cfg *config.Config, root string) (index.SnapshotStore, error) {
	switch cfg.Store.Backend {
	case "", "json":
		return store.NewJSONStore(config.GetConfigDir(root)), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.GetSQLitePath(root))
	case "postgres":
		if cfg.Store.Postgres.DSN == "" {
			return nil, fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
		return store.NewPostgresStore(ctx, cfg.Store.Postgres.DSN, root)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Store.Backend)
	}
}

func newTagSource(cfg *config.Config) tags.TagSource {
	if cfg.Tags.Source == "sidecar" {
		return tags.NewSidecarSource()
	}
	return tags.NewXattrSource()
}

func newIndexer(eng *index.Engine, cfg *config.Config) *indexer.Indexer {
	ldr := loader.New(eng.Source(), eng.Cache(), loader.Config{
		ChunkSize:   cfg.Loader.ChunkSize,
		MaxParallel: cfg.Loader.MaxParallel,
	})
	return indexer.New(eng, ldr, indexer.Config{
		ExtraIgnore: cfg.Ignore,
		Rules:       configRules(cfg),
	})
}

func configRules(cfg *config.Config) []indexer.Rule {
	rules := make([]indexer.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, indexer.Rule{Pattern: r.Pattern, Tags: r.Tags})
	}
	return rules
}

// resolveProject maps a user-supplied reference to an indexed project.
// Relative paths are resolved against the working directory before the
// engine's path, name, and ID-prefix lookup runs.
func resolveProject(eng *index.Engine, ref string) (index.Project, error) {
	lookup := ref
	if abs, err := filepath.Abs(ref); err == nil {
		if _, ok := eng.ProjectByPath(abs); ok {
			lookup = abs
		}
	}
	p, err := eng.FindProject(lookup)
	if errors.Is(err, index.ErrProjectNotFound) {
		return index.Project{}, fmt.Errorf("no project matches %q (try 'projdex scan' first)", ref)
	}
	return p, err
}

// closeEngine flushes pending mutations and persists before exit.
func closeEngine(eng *index.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eng.Close(ctx); err != nil {
		log.Printf("Warning: failed to close index: %v", err)
	}
}
