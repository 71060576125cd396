//go:build windows
// +build windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

var (
	kernel32        = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess = kernel32.NewProc("OpenProcess")
	procCloseHandle = kernel32.NewProc("CloseHandle")
)

// PROCESS_QUERY_LIMITED_INFORMATION, the weakest right that still lets
// us test for existence.
const processQueryLimitedInfo = 0x1000

// IsProcessRunning reports whether a process with the given PID exists.
// Opening a handle with minimal rights succeeds only for live processes
// we are allowed to see.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	handle, _, _ := procOpenProcess.Call(
		uintptr(processQueryLimitedInfo),
		uintptr(0),
		uintptr(pid),
	)
	if handle == 0 {
		return false
	}
	procCloseHandle.Call(handle)
	return true
}

// sysProcAttr needs no special attributes on Windows; a plain spawned
// process already survives its parent.
func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

// exitMonitor polls for child exit. ExtraFiles is not supported on
// Windows, so the pipe trick is unavailable; polling is acceptable here
// because Windows has no zombie state to confuse the existence check.
type exitMonitor struct{}

func newExitMonitor() (*exitMonitor, error) {
	return &exitMonitor{}, nil
}

func (m *exitMonitor) attach(cmd *exec.Cmd) {}

// watch returns a channel closed once the child PID stops existing.
func (m *exitMonitor) watch(pid int) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		for {
			time.Sleep(250 * time.Millisecond)
			if !IsProcessRunning(pid) {
				close(ch)
				return
			}
		}
	}()
	return ch
}

func (m *exitMonitor) discard() {}

const (
	stopFilePrefix   = "projdex-stop-"
	stopPollInterval = 500 * time.Millisecond
)

// stopFilePath names the per-PID sentinel file used for stop requests.
func stopFilePath(pid int) (string, error) {
	logDir, err := GetDefaultLogDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(logDir, fmt.Sprintf("%s%d", stopFilePrefix, pid)), nil
}

// StopProcess requests daemon shutdown by dropping a sentinel file the
// daemon polls for. Windows cannot deliver os.Interrupt across console
// sessions, so signals are not an option.
func StopProcess(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}
	if !IsProcessRunning(pid) {
		return fmt.Errorf("process %d is not running", pid)
	}

	path, err := stopFilePath(pid)
	if err != nil {
		return fmt.Errorf("failed to determine stop file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0600); err != nil {
		return fmt.Errorf("failed to write stop file: %w", err)
	}
	return nil
}

// StopChannel returns a channel closed when a stop file shows up for
// the current process. A stale file left by an earlier process that had
// the same PID is removed before polling begins, so it cannot trigger
// an immediate shutdown.
func StopChannel() <-chan struct{} {
	ch := make(chan struct{})

	path, err := stopFilePath(os.Getpid())
	if err != nil {
		return ch
	}
	_ = os.Remove(path)

	go func() {
		for {
			time.Sleep(stopPollInterval)
			if _, err := os.Stat(path); err == nil {
				_ = os.Remove(path)
				close(ch)
				return
			}
		}
	}()
	return ch
}
