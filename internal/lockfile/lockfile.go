// Package lockfile keeps two servers from sharing one data directory.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Name is the lock file created inside the data directory.
const Name = "toolshelf.lock"

// ErrAlreadyLocked means another process holds the lock.
var ErrAlreadyLocked = errors.New("data directory is in use by another process")

type Lock struct {
	path string
	f    *os.File
}

// AcquireDir locks dir/Name.
func AcquireDir(dir string) (*Lock, error) {
	return Acquire(filepath.Join(dir, Name))
}

func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, errors.New("lock path is empty")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, ErrAlreadyLocked) {
			if pid, ok := Holder(path); ok {
				return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyLocked, pid)
			}
		}
		return nil, err
	}

	// The pid is informational only.
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Sync()

	return &Lock{path: path, f: f}, nil
}

// Holder returns the pid recorded in the lock file, if any.
func Holder(path string) (int, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release unlocks and closes the file. The file itself is left in place so
// a concurrent Acquire never locks an unlinked inode.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
