package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	ConfigDir      = ".projdex"
	ConfigFileName = "config.yaml"
	SQLiteFileName = "projdex.db"
)

type Config struct {
	Version     int          `yaml:"version"`
	WatchedDirs []string     `yaml:"watched_dirs"`
	Tags        TagsConfig   `yaml:"tags"`
	Cache       CacheConfig  `yaml:"cache"`
	Loader      LoaderConfig `yaml:"loader"`
	SaveCfg     SaveConfig   `yaml:"save"`
	Store       StoreConfig  `yaml:"store"`
	Watch       WatchConfig  `yaml:"watch"`
	Ignore      []string     `yaml:"ignore"`
	Rules       []RuleConfig `yaml:"rules,omitempty"`
}

type TagsConfig struct {
	Source string `yaml:"source"` // xattr | sidecar
}

type CacheConfig struct {
	MaxAgeMinutes int `yaml:"max_age_minutes"`
}

type LoaderConfig struct {
	ChunkSize   int `yaml:"chunk_size"`
	MaxParallel int `yaml:"max_parallel"`
}

type SaveConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

type StoreConfig struct {
	Backend  string         `yaml:"backend"` // json | sqlite | postgres
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

type SQLiteConfig struct {
	Path string `yaml:"path,omitempty"` // defaults to .projdex/projdex.db
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type WatchConfig struct {
	DebounceMs    int `yaml:"debounce_ms"`
	RescanMinutes int `yaml:"rescan_minutes"` // periodic full rescan while watching
}

// RuleConfig tags projects whose directory name matches a glob pattern.
type RuleConfig struct {
	Pattern string   `yaml:"pattern"`
	Tags    []string `yaml:"tags"`
}

func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Tags: TagsConfig{
			Source: defaultTagSource(),
		},
		Cache: CacheConfig{
			MaxAgeMinutes: 60,
		},
		Loader: LoaderConfig{
			ChunkSize:   50,
			MaxParallel: 4,
		},
		SaveCfg: SaveConfig{
			DebounceMs: 1000,
		},
		Store: StoreConfig{
			Backend: "json",
		},
		Watch: WatchConfig{
			DebounceMs:    500,
			RescanMinutes: 15,
		},
		Ignore: []string{
			"node_modules",
			"vendor",
			"dist",
			"build",
			"target",
			"__pycache__",
			"venv",
			"tmp",
		},
	}
}

// defaultTagSource picks extended attributes where the platform supports
// them and sidecar files elsewhere.
func defaultTagSource() string {
	if runtime.GOOS == "windows" {
		return "sidecar"
	}
	return "xattr"
}

func GetConfigDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ConfigDir)
}

func GetConfigPath(workspaceRoot string) string {
	return filepath.Join(GetConfigDir(workspaceRoot), ConfigFileName)
}

// GetSQLitePath returns the configured database path, or the default
// location inside the config directory.
func (c *Config) GetSQLitePath(workspaceRoot string) string {
	if c.Store.SQLite.Path != "" {
		return c.Store.SQLite.Path
	}
	return filepath.Join(GetConfigDir(workspaceRoot), SQLiteFileName)
}

func Load(workspaceRoot string) (*Config, error) {
	configPath := GetConfigPath(workspaceRoot)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults for missing values (backward compatibility)
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing configuration values with sensible
// defaults so older config files keep working as fields are added.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Tags.Source == "" {
		c.Tags.Source = defaults.Tags.Source
	}
	if c.Cache.MaxAgeMinutes <= 0 {
		c.Cache.MaxAgeMinutes = defaults.Cache.MaxAgeMinutes
	}
	if c.Loader.ChunkSize <= 0 {
		c.Loader.ChunkSize = defaults.Loader.ChunkSize
	}
	if c.Loader.MaxParallel <= 0 {
		c.Loader.MaxParallel = defaults.Loader.MaxParallel
	}
	if c.SaveCfg.DebounceMs <= 0 {
		c.SaveCfg.DebounceMs = defaults.SaveCfg.DebounceMs
	}
	if c.Store.Backend == "" {
		c.Store.Backend = defaults.Store.Backend
	}
	if c.Watch.DebounceMs <= 0 {
		c.Watch.DebounceMs = defaults.Watch.DebounceMs
	}
	if c.Watch.RescanMinutes <= 0 {
		c.Watch.RescanMinutes = defaults.Watch.RescanMinutes
	}
}

func (c *Config) Save(workspaceRoot string) error {
	configDir := GetConfigDir(workspaceRoot)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := GetConfigPath(workspaceRoot)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func Exists(workspaceRoot string) bool {
	configPath := GetConfigPath(workspaceRoot)
	_, err := os.Stat(configPath)
	return err == nil
}

// FindWorkspaceRoot walks up from the working directory until it finds a
// directory containing .projdex/config.yaml.
func FindWorkspaceRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	// Resolve symlinks to handle symlinked directories
	cwd, err = filepath.EvalSymlinks(cwd)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks: %w", err)
	}

	dir := cwd
	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no projdex workspace found (run 'projdex init' first)")
}
