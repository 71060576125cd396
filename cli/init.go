package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/projdex/projdex/config"
	"github.com/projdex/projdex/indexer"
)

var (
	initSource         string
	initBackend        string
	initDirs           []string
	initNonInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init [dir...]",
	Short: "Initialize projdex in the current directory",
	Long: `Initialize projdex by creating a .projdex directory with configuration.

This command will:
- Create .projdex/config.yaml with default settings
- Prompt for the tag source (extended attributes or sidecar files)
- Prompt for the storage backend (JSON files, SQLite, or PostgreSQL)
- Add .projdex/ to .gitignore if present

Positional arguments become the watched directories whose immediate
subdirectories are indexed as projects. With no arguments the current
directory is watched.`,
	Args: cobra.ArbitraryArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initSource, "source", "s", "", "Tag source (xattr or sidecar)")
	initCmd.Flags().StringVarP(&initBackend, "backend", "b", "", "Storage backend (json, sqlite, or postgres)")
	initCmd.Flags().StringArrayVarP(&initDirs, "dir", "d", nil, "Watched directory (repeatable)")
	initCmd.Flags().BoolVar(&initNonInteractive, "yes", false, "Use defaults without prompting")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	// Check if already initialized
	if config.Exists(cwd) {
		fmt.Println("projdex is already initialized in this directory.")
		fmt.Printf("Configuration: %s\n", config.GetConfigPath(cwd))
		return nil
	}

	cfg := config.DefaultConfig()

	// Interactive mode
	if !initNonInteractive {
		reader := bufio.NewReader(os.Stdin)

		// Tag source selection
		if initSource == "" {
			fmt.Println("\nSelect tag source:")
			fmt.Println("  1) xattr (extended attributes on the project directory, invisible files)")
			fmt.Println("  2) sidecar (.projdex-tags file inside each project, survives any filesystem)")
			fmt.Printf("Choice [%s]: ", sourceChoiceDefault(cfg.Tags.Source))

			input, _ := reader.ReadString('\n')
			input = strings.TrimSpace(input)

			switch input {
			case "1", "xattr":
				cfg.Tags.Source = "xattr"
			case "2", "sidecar":
				cfg.Tags.Source = "sidecar"
			}
		} else {
			cfg.Tags.Source = initSource
		}

		// Backend selection
		if initBackend == "" {
			fmt.Println("\nSelect storage backend:")
			fmt.Println("  1) json (local files, recommended for most setups)")
			fmt.Println("  2) sqlite (single local database file)")
			fmt.Println("  3) postgres (shared server, for indexes used from several machines)")
			fmt.Print("Choice [1]: ")

			input, _ := reader.ReadString('\n')
			input = strings.TrimSpace(input)

			switch input {
			case "2", "sqlite":
				cfg.Store.Backend = "sqlite"
			case "3", "postgres":
				cfg.Store.Backend = "postgres"
				fmt.Print("PostgreSQL DSN: ")
				dsn, _ := reader.ReadString('\n')
				cfg.Store.Postgres.DSN = strings.TrimSpace(dsn)
			default:
				cfg.Store.Backend = "json"
			}
		} else {
			cfg.Store.Backend = initBackend
		}
	} else {
		// Non-interactive with flags
		if initSource != "" {
			cfg.Tags.Source = initSource
		}
		if initBackend != "" {
			cfg.Store.Backend = initBackend
		}
	}

	// Watched directories: positional args and --dir flags, default cwd
	dirs := append([]string{}, initDirs...)
	dirs = append(dirs, args...)
	if len(dirs) == 0 {
		dirs = []string{cwd}
	}
	watched, err := normalizeWatchedDirs(dirs)
	if err != nil {
		return err
	}
	cfg.WatchedDirs = watched

	// Save configuration
	if err := cfg.Save(cwd); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("\nCreated configuration at %s\n", config.GetConfigPath(cwd))
	for _, dir := range cfg.WatchedDirs {
		fmt.Printf("Watching %s\n", dir)
	}

	// Add .projdex/ to .gitignore
	gitignorePath := filepath.Join(cwd, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		if err := indexer.AddToGitignore(cwd, ".projdex/"); err != nil {
			fmt.Printf("Warning: could not update .gitignore: %v\n", err)
		} else {
			fmt.Println("Added .projdex/ to .gitignore")
		}
	}

	fmt.Println("\nprojdex initialized successfully!")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Index your projects: projdex scan")
	fmt.Println("  2. Tag one: projdex tag <project> <tag>")
	fmt.Println("  3. Keep the index fresh: projdex watch")

	switch cfg.Tags.Source {
	case "xattr":
		fmt.Println("\nTags are stored as extended attributes (user.projdex.tags).")
		fmt.Println("Some network mounts do not support them; switch tags.source to")
		fmt.Println("'sidecar' in the config if tag writes fail.")
	case "sidecar":
		fmt.Println("\nTags are stored in a .projdex-tags file inside each project.")
	}

	return nil
}

// sourceChoiceDefault maps the platform default tag source to its menu number.
func sourceChoiceDefault(source string) string {
	if source == "sidecar" {
		return "2"
	}
	return "1"
}

// normalizeWatchedDirs resolves, validates, and deduplicates watched roots.
func normalizeWatchedDirs(dirs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(dirs))
	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("watched directory %s: %w", abs, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("watched path %s is not a directory", abs)
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out, nil
}
