package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "TOOLSHELF_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "TOOLSHELF_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TOOLSHELF_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.tools_dir", typ: kString, env: "TOOLSHELF_STORAGE_TOOLS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.ToolsDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.ToolsDir },
	},
	{
		key: "storage.catalog_dir", typ: kString, env: "TOOLSHELF_STORAGE_CATALOG_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.CatalogDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.CatalogDir },
	},
	{
		key: "snapshots.max_generations", typ: kInt, env: "TOOLSHELF_SNAPSHOTS_MAX_GENERATIONS",
		apply:   func(cfg *Config, v any) { cfg.Snapshots.MaxGenerations = v.(int) },
		extract: func(cfg Config) any { return cfg.Snapshots.MaxGenerations },
	},
	{
		key: "snapshots.max_content_bytes", typ: kInt, env: "TOOLSHELF_SNAPSHOTS_MAX_CONTENT_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Snapshots.MaxContentBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Snapshots.MaxContentBytes },
	},
	{
		key: "backup.dir", typ: kString, env: "TOOLSHELF_BACKUP_DIR",
		apply:   func(cfg *Config, v any) { cfg.Backup.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Backup.Dir },
	},
	{
		key: "backup.interval_hours", typ: kInt, env: "TOOLSHELF_BACKUP_INTERVAL_HOURS",
		apply:   func(cfg *Config, v any) { cfg.Backup.IntervalHours = v.(int) },
		extract: func(cfg Config) any { return cfg.Backup.IntervalHours },
	},
	{
		key: "backup.max_generations", typ: kInt, env: "TOOLSHELF_BACKUP_MAX_GENERATIONS",
		apply:   func(cfg *Config, v any) { cfg.Backup.MaxGenerations = v.(int) },
		extract: func(cfg Config) any { return cfg.Backup.MaxGenerations },
	},
	{
		key: "backup.on_startup", typ: kBool, env: "TOOLSHELF_BACKUP_ON_STARTUP",
		apply:   func(cfg *Config, v any) { cfg.Backup.OnStartup = v.(bool) },
		extract: func(cfg Config) any { return cfg.Backup.OnStartup },
	},
	{
		key: "log.level", typ: kString, env: "TOOLSHELF_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
