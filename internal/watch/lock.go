package watch

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/nightlyone/lockfile"
)

// ErrAlreadyRunning is returned by AcquireLock when another live process
// holds the lock.
var ErrAlreadyRunning = errors.New("another watcher is already running")

// Lock is a held single-instance lock.
type Lock struct {
	lf   lockfile.Lockfile
	path string
}

// AcquireLock takes the pid lock at path. Locks left behind by dead
// processes are taken over.
func AcquireLock(path string) (*Lock, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lock path: %w", err)
	}
	lf, err := lockfile.New(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock: %w", err)
	}
	if err := lf.TryLock(); err != nil {
		if errors.Is(err, lockfile.ErrBusy) {
			if owner, perr := lf.GetOwner(); perr == nil {
				return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, owner.Pid)
			}
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", abs, err)
	}
	return &Lock{lf: lf, path: abs}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock.
func (l *Lock) Release() error {
	return l.lf.Unlock()
}
