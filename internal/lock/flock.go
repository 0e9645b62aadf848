package lock

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/gofrs/flock"
)

// FlockLock is a Locker backed by an OS advisory lock on path.
// The file itself is left in place on release; only the advisory lock
// encodes ownership, so it must not be mixed with FileLock on the same path.
type FlockLock struct {
	opts options

	mu sync.Mutex
	fl *flock.Flock
}

var _ Locker = (*FlockLock)(nil)

// NewFlock returns an unlocked FlockLock for path.
func NewFlock(path string, opts ...Option) *FlockLock {
	return &FlockLock{
		opts: newOptions(opts),
		fl:   flock.New(path),
	}
}

// Path returns the locked file location.
func (l *FlockLock) Path() string {
	return l.fl.Path()
}

// Acquire polls for the advisory lock until it is granted or the timeout elapses.
func (l *FlockLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fl.Locked() {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.opts.timeout)
	defer cancel()

	locked, err := l.fl.TryLockContext(waitCtx, l.opts.pollInterval)

	switch {
	case locked:
		runtime.SetFinalizer(l, (*FlockLock).finalize)
		return nil
	case ctx.Err() != nil:
		return &Error{Path: l.Path(), Err: ctx.Err()}
	case err == nil, errors.Is(err, context.DeadlineExceeded):
		return &Error{Path: l.Path(), Err: ErrLockTimeout}
	default:
		return &Error{Path: l.Path(), Err: err}
	}
}

// Release drops the advisory lock. It is a no-op when the lock is not held.
func (l *FlockLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.fl.Locked() {
		return nil
	}

	runtime.SetFinalizer(l, nil)

	if err := l.fl.Unlock(); err != nil {
		return &Error{Path: l.Path(), Err: err}
	}

	return nil
}

func (l *FlockLock) finalize() {
	_ = l.Release()
}
