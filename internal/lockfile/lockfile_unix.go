//go:build !windows

package lockfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// flock locks belong to the open file description, so a second Acquire
// from the same process is refused as well.
func lockFile(f *os.File) error {
	fd := int(f.Fd())
	unix.CloseOnExec(fd)

	err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EAGAIN):
		return ErrAlreadyLocked
	default:
		return fmt.Errorf("flock %s: %w", f.Name(), err)
	}
}

func unlockFile(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlocking %s: %w", f.Name(), err)
	}
	return nil
}
