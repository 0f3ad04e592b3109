package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

// DirLock is a cross-process lock on a store directory, held in <dir>/.lock.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates an unlocked lock for dir.
func NewDirLock(dir string) *DirLock {
	path := filepath.Join(dir, LockFile)
	return &DirLock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. It returns a StoreLocked error
// when another process owns the directory.
func (l *DirLock) TryLock() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return amerrors.New(amerrors.ErrCodeStoreLocked,
			fmt.Sprintf("store directory %s is in use by another process", filepath.Dir(l.path)), nil).
			WithSuggestion("stop the other amandocs process or use a different data directory")
	}

	l.locked = true
	return nil
}

// Unlock releases the lock. Calling it on an unlocked DirLock is a no-op.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}

// IsLocked reports whether this process holds the lock.
func (l *DirLock) IsLocked() bool {
	return l.locked
}
