package fileutil

import (
	"errors"
	"fmt"
	"os"
)

// LockMode selects between shared (reader) and exclusive (writer) locks.
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

// ErrLockBusy is returned by AcquireLock when wait is false and another
// process holds a conflicting lock.
var ErrLockBusy = errors.New("file lock held by another process")

// FileLock is a held advisory lock. Release unlocks and closes the
// underlying lock file. The OS also drops the lock if the process exits
// without calling Release.
type FileLock struct {
	f *os.File
}

// AcquireLock opens path, creating it if absent, and takes an advisory
// lock on it. The lock only coordinates processes that go through the
// same lock file; the file's content is never read or written.
func AcquireLock(path string, mode LockMode, wait bool) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(f, mode, wait); err != nil {
		f.Close()
		return nil, err
	}
	return &FileLock{f: f}, nil
}

// Release drops the lock and closes the lock file.
func (l *FileLock) Release() error {
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}
