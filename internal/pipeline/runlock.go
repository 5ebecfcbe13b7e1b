package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrLockTimeout indicates the run lock was not acquired in time
	ErrLockTimeout = errors.New("timed out waiting for indexing run lock")

	errLockBusy = errors.New("run lock is held by another process")
)

// RunLock serializes indexing runs of one repository across processes using
// flock(2). The kernel releases it if the holder exits.
type RunLock struct {
	path string
	file *os.File
}

// NewRunLock returns the lock of a repository under dir.
func NewRunLock(dir, repoID string) *RunLock {
	return &RunLock{path: filepath.Join(dir, repoID+".lock")}
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.path
}

// Held reports whether this instance holds the lock.
func (l *RunLock) Held() bool {
	return l.file != nil
}

// TryAcquire takes the lock without waiting. It returns false when another
// holder has it.
func (l *RunLock) TryAcquire() (bool, error) {
	if l.file != nil {
		return true, nil
	}
	err := l.attempt()
	if errors.Is(err, errLockBusy) {
		return false, nil
	}
	return err == nil, err
}

// Acquire waits for the lock with exponential polling until timeout or ctx
// cancellation.
func (l *RunLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if l.file != nil {
		return nil
	}
	if timeout <= 0 {
		ok, err := l.TryAcquire()
		if err == nil && !ok {
			return fmt.Errorf("%w: %s", ErrLockTimeout, l.path)
		}
		return err
	}

	poll := backoff.NewExponentialBackOff()
	poll.InitialInterval = 10 * time.Millisecond
	poll.MaxInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := l.attempt()
		if err != nil && !errors.Is(err, errLockBusy) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(poll), backoff.WithMaxElapsedTime(timeout))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errLockBusy):
		return fmt.Errorf("%w after %s: %s", ErrLockTimeout, timeout, l.path)
	default:
		return err
	}
}

// attempt makes one non-blocking flock call.
func (l *RunLock) attempt() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return errLockBusy
		}
		return fmt.Errorf("flock failed: %w", err)
	}

	l.file = file
	return nil
}

// Release frees the lock. Releasing an unheld lock is a no-op.
func (l *RunLock) Release() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close failed: %w", closeErr)
	}
	return nil
}
