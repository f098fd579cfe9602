// Package state keeps the on-disk snapshots that make a reconciliation
// run restartable.
//
// A run first copies its input to the current snapshot. Once every table
// has been reconciled the current snapshot is renamed over the old one.
// A current snapshot found at startup therefore belongs to a run that
// never finished.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

const (
	CurrentFile = "current"
	OldFile     = "old"
	lockFile    = ".lock"
)

// ErrLocked is returned when another gtctl holds the state directory.
var ErrLocked = errors.New("state directory is locked by another process")

// Store owns the snapshot files of one state directory.
type Store struct {
	dir  string
	lock *flock.Flock
}

// Open creates dir if needed and locks it for the lifetime of the Store.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock state dir: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
	}
	return &Store{dir: dir, lock: lock}, nil
}

// Close releases the state directory lock.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

// CurrentPath is the snapshot of the run in progress.
func (s *Store) CurrentPath() string { return filepath.Join(s.dir, CurrentFile) }

// OldPath is the snapshot of the last completed run.
func (s *Store) OldPath() string { return filepath.Join(s.dir, OldFile) }

// Pending reports whether a previous run left a current snapshot behind.
func (s *Store) Pending() (bool, error) {
	_, err := os.Stat(s.CurrentPath())
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat '%s': %w", s.CurrentPath(), err)
}

// Stage copies src over the current snapshot. The copy lands atomically,
// so a crash never leaves a truncated snapshot. Staging the current
// snapshot onto itself is a no-op.
func (s *Store) Stage(src string) error {
	cur := s.CurrentPath()
	if same, err := sameFile(src, cur); err != nil {
		return err
	} else if same {
		slog.Debug("input is the current snapshot, not copying", "path", cur)
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to copy new aggregate '%s' to '%s': %w", src, cur, err)
	}
	defer f.Close()

	if err := atomic.WriteFile(cur, f); err != nil {
		return fmt.Errorf("failed to copy new aggregate '%s' to '%s': %w", src, cur, err)
	}
	return nil
}

// Promote renames the current snapshot over the old one. This is the
// commit point of a run.
func (s *Store) Promote() error {
	cur, old := s.CurrentPath(), s.OldPath()
	if err := atomic.ReplaceFile(cur, old); err != nil {
		return fmt.Errorf("failed to rename '%s' to '%s': %w", cur, old, err)
	}
	return nil
}

func sameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, fmt.Errorf("stat '%s': %w", a, err)
	}
	bi, err := os.Stat(b)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat '%s': %w", b, err)
	}
	return os.SameFile(ai, bi), nil
}
