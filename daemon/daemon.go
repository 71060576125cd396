// Package daemon provides lifecycle management for the projdex watch daemon:
// PID file management, background spawning of the current binary, and
// stop signaling across platforms.
//
// The PID file contains a single line with the process ID as a decimal
// integer. PID file writes take a non-blocking file lock so two processes
// racing to start do not clobber each other.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/projdex/projdex/internal/fileutil"
)

// EnvBackground is set in the environment of spawned background
// processes so they can tell they should not re-daemonize.
const EnvBackground = "PROJDEX_BACKGROUND"

const (
	pidFileName   = "projdex-watch.pid"
	logFileName   = "projdex-watch.log"
	readyFileName = "projdex-watch.ready"
)

// GetDefaultLogDir returns the OS-specific default log directory.
//
// Platform-specific defaults:
//   - Linux:   $XDG_STATE_HOME/projdex/logs or ~/.local/state/projdex/logs
//   - macOS:   ~/Library/Logs/projdex
//   - Windows: %LOCALAPPDATA%\projdex\logs
//
// The directory may not exist yet; callers create it with os.MkdirAll.
func GetDefaultLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Logs", "projdex"), nil
	case "windows":
		if base := os.Getenv("LOCALAPPDATA"); base != "" {
			return filepath.Join(base, "projdex", "logs"), nil
		}
		return filepath.Join(homeDir, "AppData", "Local", "projdex", "logs"), nil
	default: // Linux and other Unix-like systems
		if base := os.Getenv("XDG_STATE_HOME"); base != "" {
			return filepath.Join(base, "projdex", "logs"), nil
		}
		return filepath.Join(homeDir, ".local", "state", "projdex", "logs"), nil
	}
}

// pidLock is held from WritePIDFile until RemovePIDFile or process
// exit, so a second daemon cannot claim the PID file while this one is
// alive.
var pidLock *fileutil.FileLock

// WritePIDFile writes the current process ID to the PID file after
// taking the PID lock. The lock stays held for the process lifetime.
func WritePIDFile(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	pidPath := filepath.Join(logDir, pidFileName)

	lock, err := fileutil.AcquireLock(pidPath+".lock", fileutil.LockExclusive, false)
	if err != nil {
		if errors.Is(err, fileutil.ErrLockBusy) {
			return fmt.Errorf("another projdex watch process is starting (lock held)")
		}
		return fmt.Errorf("failed to lock PID file: %w", err)
	}

	content := fmt.Sprintf("%d\n", os.Getpid())
	if err := fileutil.WriteFileAtomic(pidPath, []byte(content), 0600); err != nil {
		lock.Release()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	pidLock = lock
	return nil
}

// ReadPIDFile reads the process ID from the PID file in the given logDir.
//
// Return values:
//   - (0, nil):   no PID file exists (watcher not running or not started yet)
//   - (pid, nil): PID file exists and contains a valid process ID
//   - (0, error): PID file exists but is corrupt or unreadable
//
// This does NOT check whether the process is actually running; use
// GetRunningPID for stale PID detection and cleanup.
func ReadPIDFile(logDir string) (int, error) {
	pidPath := filepath.Join(logDir, pidFileName)

	data, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}

	return pid, nil
}

// RemovePIDFile releases the PID lock and removes the PID file and its
// lock file.
func RemovePIDFile(logDir string) error {
	if pidLock != nil {
		_ = pidLock.Release()
		pidLock = nil
	}

	pidPath := filepath.Join(logDir, pidFileName)
	_ = os.Remove(pidPath + ".lock")

	if err := os.Remove(pidPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// GetRunningPID returns the PID of the running watch daemon, or 0 if not
// running. Stale PID files (where the process no longer exists) are
// cleaned up along the way.
func GetRunningPID(logDir string) (int, error) {
	pid, err := ReadPIDFile(logDir)
	if err != nil {
		return 0, err
	}

	if pid == 0 {
		return 0, nil
	}

	if !IsProcessRunning(pid) {
		_ = RemovePIDFile(logDir)
		return 0, nil
	}

	return pid, nil
}

// WriteReadyFile writes the ready marker file to indicate the daemon has
// finished initializing (store loaded, initial scan done).
func WriteReadyFile(logDir string) error {
	readyPath := filepath.Join(logDir, readyFileName)
	content := fmt.Sprintf("ready\n%d\n", os.Getpid())
	if err := os.WriteFile(readyPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write ready file: %w", err)
	}
	return nil
}

// RemoveReadyFile removes the ready marker file.
func RemoveReadyFile(logDir string) error {
	readyPath := filepath.Join(logDir, readyFileName)
	if err := os.Remove(readyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove ready file: %w", err)
	}
	return nil
}

// IsReady checks if the ready marker file exists.
func IsReady(logDir string) bool {
	readyPath := filepath.Join(logDir, readyFileName)
	_, err := os.Stat(readyPath)
	return err == nil
}

// SpawnBackground re-executes the current binary as a detached background
// process with stdout/stderr going to the daemon log file and
// PROJDEX_BACKGROUND=1 in its environment.
//
// Args are the command-line arguments for the child (e.g. ["watch"]).
// The returned channel closes when the child exits, which lets callers
// detect early failures without relying on kill(0).
func SpawnBackground(logDir string, args []string) (int, <-chan struct{}, error) {
	return spawnBackgroundWithLog(logDir, filepath.Join(logDir, logFileName), args)
}

func spawnBackgroundWithLog(logDir, logPath string, args []string) (int, <-chan struct{}, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return 0, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	executable, err := os.Executable()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	monitor, err := newExitMonitor()
	if err != nil {
		logFile.Close()
		return 0, nil, err
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), EnvBackground+"=1")
	cmd.SysProcAttr = sysProcAttr()
	monitor.attach(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		monitor.discard()
		return 0, nil, fmt.Errorf("failed to start background process: %w", err)
	}

	logFile.Close()
	exitCh := monitor.watch(cmd.Process.Pid)

	return cmd.Process.Pid, exitCh, nil
}

// LogPath returns the daemon log file location under logDir.
func LogPath(logDir string) string {
	return filepath.Join(logDir, logFileName)
}

// PIDPath returns the daemon PID file location under logDir.
func PIDPath(logDir string) string {
	return filepath.Join(logDir, pidFileName)
}
