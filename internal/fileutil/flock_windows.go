//go:build windows
// +build windows

package fileutil

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	kernel32         = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = kernel32.NewProc("LockFileEx")
	procUnlockFileEx = kernel32.NewProc("UnlockFileEx")
)

const (
	lockfileExclusiveLock   = 0x00000002
	lockfileFailImmediately = 0x00000001

	// ERROR_LOCK_VIOLATION, returned when FailImmediately is set and the
	// lock is already held.
	errnoLockViolation syscall.Errno = 33
)

func lockFile(f *os.File, mode LockMode, wait bool) error {
	var flags uintptr
	if mode == LockExclusive {
		flags |= lockfileExclusiveLock
	}
	if !wait {
		flags |= lockfileFailImmediately
	}

	// Lock the first byte; all callers lock the same range so any byte works.
	var ov syscall.Overlapped
	ret, _, err := procLockFileEx.Call(
		f.Fd(),
		flags,
		0,
		1,
		0,
		uintptr(unsafe.Pointer(&ov)),
	)
	if ret == 0 {
		if err == errnoLockViolation {
			return ErrLockBusy
		}
		return err
	}
	return nil
}

func unlockFile(f *os.File) error {
	var ov syscall.Overlapped
	ret, _, err := procUnlockFileEx.Call(
		f.Fd(),
		0,
		1,
		0,
		uintptr(unsafe.Pointer(&ov)),
	)
	if ret == 0 {
		return err
	}
	return nil
}
