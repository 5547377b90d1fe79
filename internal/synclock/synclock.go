// Package synclock serializes sync runs across processes with an advisory
// file lock next to the cache database. The sync engine itself does not
// coordinate concurrent callers.
package synclock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileName is the lock file created beside the database.
const FileName = ".sync.lock"

// pollInterval is how often Acquire retries a held lock.
const pollInterval = 50 * time.Millisecond

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("another sync is in progress")

// Lock is an exclusive sync lock.
type Lock struct {
	flock *flock.Flock
}

// New returns the lock guarding the database at dbPath.
func New(dbPath string) *Lock {
	return &Lock{flock: flock.New(filepath.Join(filepath.Dir(dbPath), FileName))}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.flock.Path()
}

// TryAcquire takes the lock without waiting. It returns ErrLocked when the
// lock is held elsewhere.
func (l *Lock) TryAcquire() error {
	if err := os.MkdirAll(filepath.Dir(l.Path()), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

// Acquire waits for the lock until timeout elapses or ctx is done. A zero
// timeout behaves like TryAcquire.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return l.TryAcquire()
	}
	if err := os.MkdirAll(filepath.Dir(l.Path()), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := l.flock.TryLockContext(waitCtx, pollInterval)
	if locked {
		return nil
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	return fmt.Errorf("timeout after %v: %w", timeout, ErrLocked)
}

// Release unlocks. Safe to call more than once.
func (l *Lock) Release() error {
	return l.flock.Unlock()
}

// With runs fn while holding the lock.
func With(dbPath string, fn func() error) error {
	l := New(dbPath)
	if err := l.TryAcquire(); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
