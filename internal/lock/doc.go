// Package lock provides cross-process mutual exclusion for the manifest file.
//
// FileLock creates a marker file with exclusive-create semantics and polls
// until the marker can be created or the timeout elapses. FlockLock offers
// the same contract on top of an OS advisory lock. WithLock wraps either one
// so the lock is released on every exit path of the critical section.
//
// A marker left behind by a crashed process is never considered stale: the
// timeout error reports the PID recorded in the marker and whether that
// process is still alive, and the operator removes the marker by hand.
package lock
