// Package catalog reads the template library: a catalog.yaml index plus
// the HTML files it points at, all under one directory.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/toolshelf/internal/toolfs"
	"github.com/kalambet/toolshelf/internal/tools"
)

// IndexFile is the catalog index inside the catalog directory.
const IndexFile = "catalog.yaml"

// ErrTemplateNotFound is returned by Find and Content for unknown IDs.
var ErrTemplateNotFound = errors.New("template not found")

type Template struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Category    string   `yaml:"category" json:"category"`
	Tags        []string `yaml:"tags" json:"tags"`
	ToolType    string   `yaml:"tool_type" json:"tool_type"`
	File        string   `yaml:"file" json:"-"`
}

type Category struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Catalog is the parsed index.
type Catalog struct {
	Templates  []Template          `yaml:"templates" json:"templates"`
	Categories map[string]Category `yaml:"categories" json:"categories"`

	dir string
}

// Load parses dir/catalog.yaml. A missing index yields an empty catalog.
func Load(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir}
	b, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if errors.Is(err, fs.ErrNotExist) {
		c.Templates = []Template{}
		c.Categories = map[string]Category{}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	seen := make(map[string]bool, len(c.Templates))
	for i, t := range c.Templates {
		if t.ID == "" || t.File == "" {
			return nil, fmt.Errorf("template %d: id and file are required", i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		seen[t.ID] = true
		if t.ToolType == "" {
			c.Templates[i].ToolType = "html"
		}
		if t.Tags == nil {
			c.Templates[i].Tags = []string{}
		}
	}
	if c.Templates == nil {
		c.Templates = []Template{}
	}
	if c.Categories == nil {
		c.Categories = map[string]Category{}
	}
	return c, nil
}

// Find returns the template with the given ID.
func (c *Catalog) Find(id string) (Template, error) {
	for _, t := range c.Templates {
		if t.ID == id {
			return t, nil
		}
	}
	return Template{}, ErrTemplateNotFound
}

// Content reads the template's HTML file. The file path must stay inside
// the catalog directory after symlinks are resolved.
func (c *Catalog) Content(t Template) ([]byte, error) {
	p, err := toolfs.ContainedPath(c.dir, t.File)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Instantiate reads template id and describes a new tool built from it.
// An empty name keeps the template's name.
func (c *Catalog) Instantiate(id, name string) (tools.CreateInput, error) {
	t, err := c.Find(id)
	if err != nil {
		return tools.CreateInput{}, err
	}
	content, err := c.Content(t)
	if err != nil {
		return tools.CreateInput{}, fmt.Errorf("reading template %s: %w", id, err)
	}
	if strings.TrimSpace(name) == "" {
		name = t.Name
	}
	return tools.CreateInput{
		Name:        name,
		Description: t.Description,
		Tags:        t.Tags,
		ToolType:    t.ToolType,
		Content:     string(content),
	}, nil
}
