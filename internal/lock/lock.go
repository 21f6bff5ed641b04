// Package lock enforces one client process per session. Two processes
// sharing a session would also share its cache database and outbox, so
// the session directory carries an advisory flock'd LOCK file.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const lockFileName = "LOCK"

// LockHeldError reports the owner recorded in the lock file. PID is 0
// when the owner record is missing or unreadable.
type LockHeldError struct {
	PID  int
	Path string
}

func (e *LockHeldError) Error() string {
	if e.PID == 0 {
		return fmt.Sprintf("session lock %s held by another process", e.Path)
	}
	return fmt.Sprintf("session lock %s held by pid %d", e.Path, e.PID)
}

// Lock is an acquired session lock. The flock lives as long as the file
// descriptor, so the lock is released on process exit even after a crash.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive session lock, creating the session
// directory if needed. It never blocks; a held lock surfaces
// immediately as a LockHeldError.
func Acquire(sessionDir string) (*Lock, error) {
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	path := filepath.Join(sessionDir, lockFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		held := &LockHeldError{PID: ownerPID(path), Path: path}
		_ = f.Close()
		return nil, held
	}

	if err := writeOwner(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock owner: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes the file. Safe on a nil receiver
// and idempotent.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove while still holding the flock so a racing Acquire never
	// sees an unlocked stale file.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// writeOwner replaces the file contents with a single owner record:
// "<pid> <rfc3339 start time>".
func writeOwner(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	return err
}

func ownerPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	pid, _ := strconv.Atoi(fields[0])
	return pid
}
