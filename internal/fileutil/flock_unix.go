//go:build !windows
// +build !windows

package fileutil

import (
	"os"
	"syscall"
)

func lockFile(f *os.File, mode LockMode, wait bool) error {
	how := syscall.LOCK_SH
	if mode == LockExclusive {
		how = syscall.LOCK_EX
	}
	if !wait {
		how |= syscall.LOCK_NB
	}
	err := syscall.Flock(int(f.Fd()), how)
	if err == syscall.EWOULDBLOCK {
		return ErrLockBusy
	}
	return err
}

func unlockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
