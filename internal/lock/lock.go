package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

const (
	// DefaultTimeout is the acquisition timeout used when none is configured.
	DefaultTimeout = 10 * time.Second
	// DefaultPollInterval is the retry delay used when none is configured.
	DefaultPollInterval = 50 * time.Millisecond
)

// ErrLockTimeout is returned when the lock was not acquired within the timeout.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// Locker is an exclusive lock shared by independent processes.
type Locker interface {
	// Acquire blocks until the lock is held, the timeout elapses or ctx is done.
	Acquire(ctx context.Context) error
	// Release gives the lock up. It is a no-op when the lock is not held.
	Release() error
	// Path returns the filesystem location backing the lock.
	Path() string
}

// Error describes a failed lock operation.
type Error struct {
	// Path is the lock file location.
	Path string
	// HolderPID is the PID recorded by the current holder, 0 if unknown.
	HolderPID int
	// HolderAlive reports whether HolderPID was found in the process table.
	HolderAlive bool
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("lock %s: %v", e.Path, e.Err)

	switch {
	case e.HolderPID == 0:
		return msg
	case e.HolderAlive:
		return fmt.Sprintf("%s (held by running PID %d)", msg, e.HolderPID)
	default:
		return fmt.Sprintf("%s (held by PID %d which is not running, remove the lock file if it crashed)",
			msg, e.HolderPID)
	}
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Option configures a lock.
type Option func(*options)

type options struct {
	timeout      time.Duration
	pollInterval time.Duration
}

// WithTimeout bounds the total time spent in Acquire.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithPollInterval sets the delay between two acquisition attempts.
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// WithLock runs fn while holding l. The lock is released when fn returns or
// panics; a release failure is appended to the error returned by fn.
func WithLock(ctx context.Context, l Locker, fn func(ctx context.Context) error) (err error) {
	if err = l.Acquire(ctx); err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, l.Release())
	}()

	return fn(ctx)
}
