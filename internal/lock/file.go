package lock

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-ps"
	"go.uber.org/multierr"

	"github.com/oshokin/make-manifest/internal/logger"
)

// markerPermissions is the mode of a freshly created marker file.
const markerPermissions = 0o644

// FileLock is a Locker whose token is a marker file created with O_EXCL.
// Whoever creates the file owns the lock until it removes it.
type FileLock struct {
	path string
	opts options

	mu       sync.Mutex
	fd       *os.File
	acquired bool
}

var _ Locker = (*FileLock)(nil)

// New returns an unlocked FileLock for the marker at path.
func New(path string, opts ...Option) *FileLock {
	return &FileLock{
		path: path,
		opts: newOptions(opts),
	}
}

// Path returns the marker file location.
func (l *FileLock) Path() string {
	return l.path
}

// Held reports whether this instance currently owns the lock.
func (l *FileLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.acquired
}

// Acquire creates the marker file, retrying every poll interval while another
// owner holds it. Errors other than "file exists" are returned immediately.
// Acquiring a lock this instance already holds is a no-op.
func (l *FileLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.acquired {
		return nil
	}

	var (
		start  = time.Now()
		logged bool
	)

	for {
		err := l.tryCreate()
		if err == nil {
			l.acquired = true
			runtime.SetFinalizer(l, (*FileLock).finalize)

			logger.DebugKV(ctx, "Lock acquired", "path", l.path, "waited", time.Since(start))

			return nil
		}

		if !errors.Is(err, fs.ErrExist) {
			return &Error{Path: l.path, Err: err}
		}

		if time.Since(start) >= l.opts.timeout {
			return l.timeoutError()
		}

		if !logged {
			logger.InfoKV(ctx, "Waiting for lock held by another process",
				"path", l.path, "timeout", l.opts.timeout)

			logged = true
		}

		if err = sleep(ctx, l.opts.pollInterval); err != nil {
			return &Error{Path: l.path, Err: err}
		}
	}
}

// Release closes and removes the marker file. Calling it on a lock that is
// not held does nothing.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.acquired {
		return nil
	}

	runtime.SetFinalizer(l, nil)

	var err error

	if l.fd != nil {
		err = l.fd.Close()
		l.fd = nil
	}

	if removeErr := os.Remove(l.path); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		err = multierr.Append(err, removeErr)
	}

	l.acquired = false

	if err != nil {
		return &Error{Path: l.path, Err: err}
	}

	return nil
}

// finalize releases a lock that became unreachable while still held.
func (l *FileLock) finalize() {
	_ = l.Release()
}

// tryCreate makes a single exclusive-create attempt and records our PID in the marker.
func (l *FileLock) tryCreate() error {
	fd, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, markerPermissions)
	if err != nil {
		return err
	}

	if _, err = fd.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = fd.Close()
		_ = os.Remove(l.path)

		return err
	}

	l.fd = fd

	return nil
}

// timeoutError builds ErrLockTimeout annotated with whatever is known about the holder.
func (l *FileLock) timeoutError() error {
	lockErr := &Error{Path: l.path, Err: ErrLockTimeout}

	pid, err := readHolderPID(l.path)
	if err != nil {
		return lockErr
	}

	lockErr.HolderPID = pid
	lockErr.HolderAlive = isProcessRunning(pid)

	return lockErr
}

// readHolderPID parses the PID written into the marker by its owner.
func readHolderPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// isProcessRunning looks the PID up in the process table.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := ps.FindProcess(pid)

	return err == nil && process != nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
