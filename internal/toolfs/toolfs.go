// Package toolfs stores tool content on disk under a single root directory.
// Writes are atomic and every path is checked for containment after
// symlinks are resolved.
package toolfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned when a path resolves outside the root.
var ErrUnsafePath = errors.New("path resolves outside the tools directory")

// IndexFile is the name of a tool's content file inside its directory.
const IndexFile = "index.html"

// FS is a tools directory.
type FS struct {
	root string
}

// New creates root if needed and returns an FS rooted at its real path.
func New(root string) (*FS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("tools directory is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating tools directory: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving tools directory: %w", err)
	}
	return &FS{root: real}, nil
}

// Root returns the resolved root directory.
func (f *FS) Root() string {
	return f.root
}

// Location returns the relative path of a tool's content file.
func Location(toolID string) string {
	return toolID + "/" + IndexFile
}

// Resolve maps a stored relative location to an absolute path and verifies
// that it stays inside the root. Anything that cannot be verified is
// rejected.
func (f *FS) Resolve(loc string) (string, error) {
	if strings.TrimSpace(loc) == "" || filepath.IsAbs(loc) {
		return "", ErrUnsafePath
	}
	target := filepath.Join(f.root, filepath.FromSlash(loc))
	real, err := realPath(target)
	if err != nil {
		return "", ErrUnsafePath
	}
	ok, err := IsWithin(real, f.root)
	if err != nil || !ok || real == f.root {
		return "", ErrUnsafePath
	}
	return real, nil
}

// realPath resolves symlinks in p. Missing trailing elements are allowed so
// that paths of files about to be created can be checked; the deepest
// existing ancestor is resolved and the rest is appended.
func realPath(p string) (string, error) {
	p = filepath.Clean(p)
	var rest []string
	for {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			for i := len(rest) - 1; i >= 0; i-- {
				real = filepath.Join(real, rest[i])
			}
			return real, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		rest = append(rest, filepath.Base(p))
		p = parent
	}
}

// IsWithin reports whether path is root or lies beneath it. Both arguments
// must already be absolute and symlink-free.
func IsWithin(path, root string) (bool, error) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false, err
	}
	rel = filepath.Clean(rel)
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false, nil
	}
	return true, nil
}

// ContainedPath resolves name relative to root and fails with ErrUnsafePath
// if the result escapes root. It is used for directories other than the
// tools directory, such as the template catalog.
func ContainedPath(root, name string) (string, error) {
	rootReal, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", ErrUnsafePath
	}
	if rootReal, err = filepath.Abs(rootReal); err != nil {
		return "", ErrUnsafePath
	}
	if filepath.IsAbs(name) {
		return "", ErrUnsafePath
	}
	real, err := realPath(filepath.Join(rootReal, filepath.FromSlash(name)))
	if err != nil {
		return "", ErrUnsafePath
	}
	if ok, err := IsWithin(real, rootReal); err != nil || !ok {
		return "", ErrUnsafePath
	}
	return real, nil
}

// Read returns the content stored at loc. A missing file is reported with
// an error matching fs.ErrNotExist.
func (f *FS) Read(loc string) ([]byte, error) {
	p, err := f.Resolve(loc)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Write atomically replaces the content at loc, creating the tool's
// directory if needed.
func (f *FS) Write(loc string, data []byte) error {
	p, err := f.Resolve(loc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if dir == f.root {
		return ErrUnsafePath
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating tool directory: %w", err)
	}
	// The directory may have been swapped while it was created.
	if p, err = f.Resolve(loc); err != nil {
		return err
	}
	return AtomicWriteFile(p, data, 0o644)
}

// RemoveToolDir deletes the directory holding loc. A directory that is
// already gone is not an error.
func (f *FS) RemoveToolDir(loc string) error {
	p, err := f.Resolve(loc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if ok, err := IsWithin(dir, f.root); err != nil || !ok || dir == f.root {
		return ErrUnsafePath
	}
	return os.RemoveAll(dir)
}
