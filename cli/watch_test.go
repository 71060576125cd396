package cli

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/projdex/projdex/config"
	"github.com/projdex/projdex/daemon"
	"github.com/projdex/projdex/watcher"
)

func withWatchGlobals(t *testing.T, background, stop, status bool) {
	t.Helper()
	oldBackground := watchBackground
	oldStop := watchStop
	oldStatus := watchStatus
	oldLogDir := watchLogDir

	watchBackground = background
	watchStop = stop
	watchStatus = status
	watchLogDir = t.TempDir()

	t.Cleanup(func() {
		watchBackground = oldBackground
		watchStop = oldStop
		watchStatus = oldStatus
		watchLogDir = oldLogDir
	})
}

func writeOwnPIDFile(t *testing.T, logDir string) {
	t.Helper()
	content := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(daemon.PIDPath(logDir), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}
}

func TestRunWatchRejectsCombinedModes(t *testing.T) {
	withWatchGlobals(t, true, true, false)

	err := runWatch(watchCmd, nil)
	if err == nil {
		t.Fatal("runWatch() should fail when --background and --stop are combined")
	}
	if !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("runWatch() error = %q, want message containing %q", err.Error(), "mutually exclusive")
	}
}

func TestStopWatchDaemonNotRunning(t *testing.T) {
	if err := stopWatchDaemon(t.TempDir()); err != nil {
		t.Fatalf("stopWatchDaemon() failed: %v", err)
	}
}

func TestShowWatchStatusNotRunning(t *testing.T) {
	if err := showWatchStatus(t.TempDir()); err != nil {
		t.Fatalf("showWatchStatus() failed: %v", err)
	}
}

func TestShowWatchStatusRunning(t *testing.T) {
	logDir := t.TempDir()
	writeOwnPIDFile(t, logDir)

	if err := showWatchStatus(logDir); err != nil {
		t.Fatalf("showWatchStatus() failed: %v", err)
	}
}

func TestStartBackgroundWatchAlreadyRunning(t *testing.T) {
	logDir := t.TempDir()
	writeOwnPIDFile(t, logDir)

	// Reports the running daemon instead of spawning a second one.
	if err := startBackgroundWatch(logDir); err != nil {
		t.Fatalf("startBackgroundWatch() failed: %v", err)
	}
}

func TestHandleDirEventAddsNewProject(t *testing.T) {
	eng := newTestEngine(t)
	ix := newIndexer(eng, config.DefaultConfig())

	dir := filepath.Join(t.TempDir(), "svc")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}

	handleDirEvent(context.Background(), eng, ix, watcher.DirEvent{Type: watcher.EventCreate, Path: dir}, false)

	p, ok := eng.ProjectByPath(dir)
	if !ok {
		t.Fatal("ProjectByPath() did not find the new project")
	}
	if p.Name != "svc" {
		t.Fatalf("project name = %q, want %q", p.Name, "svc")
	}
}

func TestHandleDirEventRemovesVanishedProject(t *testing.T) {
	eng := newTestEngine(t)
	ix := newIndexer(eng, config.DefaultConfig())

	dir := filepath.Join(t.TempDir(), "gone")
	addProject(eng, "gone", dir, "go")

	handleDirEvent(context.Background(), eng, ix, watcher.DirEvent{Type: watcher.EventDelete, Path: dir}, false)

	if _, ok := eng.ProjectByPath(dir); ok {
		t.Fatal("ProjectByPath() still finds the removed project")
	}
}
