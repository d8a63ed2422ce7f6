package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Snapshots SnapshotConfig
	Backup    BackupConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir    string
	ToolsDir   string
	CatalogDir string
}

type SnapshotConfig struct {
	MaxGenerations  int
	MaxContentBytes int
}

type BackupConfig struct {
	Dir            string
	IntervalHours  int
	MaxGenerations int
	OnStartup      bool
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Snapshots: SnapshotConfig{
			MaxGenerations:  20,
			MaxContentBytes: 10 << 20,
		},
		Backup: BackupConfig{
			IntervalHours:  24,
			MaxGenerations: 7,
			OnStartup:      true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the TOML file at
// $XDG_CONFIG_HOME/toolshelf/config.toml, then applies TOOLSHELF_*
// environment overrides. Directories left empty are derived from
// storage.data_dir.
func Load() (Config, error) {
	return loadWith(newFileBackend(FilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	cfg.fillDerived()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) fillDerived() {
	c.Storage.DataDir = expandHome(c.Storage.DataDir)
	if c.Storage.ToolsDir == "" {
		c.Storage.ToolsDir = filepath.Join(c.Storage.DataDir, "tools")
	}
	if c.Storage.CatalogDir == "" {
		c.Storage.CatalogDir = filepath.Join(c.Storage.DataDir, "catalog")
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(c.Storage.DataDir, "backups")
	}
	c.Storage.ToolsDir = expandHome(c.Storage.ToolsDir)
	c.Storage.CatalogDir = expandHome(c.Storage.CatalogDir)
	c.Backup.Dir = expandHome(c.Backup.Dir)
}

func (c Config) validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	case c.Storage.DataDir == "":
		return fmt.Errorf("invalid config: storage.data_dir is empty")
	case c.Snapshots.MaxGenerations < 1:
		return fmt.Errorf("invalid config: snapshots.max_generations must be at least 1")
	case c.Snapshots.MaxContentBytes < 1:
		return fmt.Errorf("invalid config: snapshots.max_content_bytes must be positive")
	case c.Backup.IntervalHours < 1:
		return fmt.Errorf("invalid config: backup.interval_hours must be at least 1")
	case c.Backup.MaxGenerations < 1:
		return fmt.Errorf("invalid config: backup.max_generations must be at least 1")
	}
	return nil
}

// FilePath returns the location of the config file.
func FilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "toolshelf", "config.toml")
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "toolshelf-data"
		}
	}
	return filepath.Join(dir, "toolshelf")
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
