package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigBackend abstracts where persisted config values live. Keys are
// dotted "section.name" pairs.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	SetBool(key string, val bool) error
	Delete(key string) error
}

// fileBackend stores config as a TOML document with one table per section.
type fileBackend struct {
	path string
	data map[string]any
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, data: make(map[string]any)}
	b.load()
	return b
}

func (b *fileBackend) load() {
	if _, err := toml.DecodeFile(b.path, &b.data); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", b.path, err)
		}
		b.data = make(map[string]any)
	}
}

func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(b.data); err != nil {
		f.Close()
		return fmt.Errorf("encoding config: %w", err)
	}
	return f.Close()
}

func splitKey(key string) (section, name string) {
	section, name, ok := strings.Cut(key, ".")
	if !ok {
		return "", key
	}
	return section, name
}

func (b *fileBackend) lookup(key string) (any, bool) {
	section, name := splitKey(key)
	if section == "" {
		v, ok := b.data[name]
		return v, ok
	}
	table, ok := b.data[section].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := table[name]
	return v, ok
}

func (b *fileBackend) set(key string, val any) error {
	section, name := splitKey(key)
	if section == "" {
		b.data[name] = val
		return b.save()
	}
	table, ok := b.data[section].(map[string]any)
	if !ok {
		table = make(map[string]any)
		b.data[section] = table
	}
	table[name] = val
	return b.save()
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v), true, nil
	}
	return s, true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int64:
		if val < math.MinInt || val > math.MaxInt {
			return 0, true, fmt.Errorf("value %d for %s is out of range", val, key)
		}
		return int(val), true, nil
	case float64:
		if val != math.Trunc(val) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type for %s", key)
	}
}

func (b *fileBackend) SetString(key, val string) error {
	return b.set(key, val)
}

func (b *fileBackend) SetInt(key string, val int) error {
	return b.set(key, int64(val))
}

func (b *fileBackend) SetBool(key string, val bool) error {
	return b.set(key, val)
}

func (b *fileBackend) Delete(key string) error {
	section, name := splitKey(key)
	if table, ok := b.data[section].(map[string]any); ok {
		delete(table, name)
		if len(table) == 0 {
			delete(b.data, section)
		}
	} else {
		delete(b.data, name)
	}
	return b.save()
}
