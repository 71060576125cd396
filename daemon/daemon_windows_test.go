//go:build windows
// +build windows

package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// These tests target our own PID: StopProcess refuses PIDs that are not
// running, and os.Getpid() is the one PID guaranteed alive.

func TestStopProcess_WritesSentinel(t *testing.T) {
	pid := os.Getpid()

	path, err := stopFilePath(pid)
	if err != nil {
		t.Fatalf("stopFilePath failed: %v", err)
	}
	_ = os.Remove(path)
	t.Cleanup(func() { os.Remove(path) })

	if err := StopProcess(pid); err != nil {
		t.Fatalf("StopProcess failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("sentinel file missing at %s", path)
	}
}

func TestStopChannel_FiresOnSentinel(t *testing.T) {
	path, err := stopFilePath(os.Getpid())
	if err != nil {
		t.Fatalf("stopFilePath failed: %v", err)
	}
	_ = os.Remove(path)

	ch := StopChannel()

	select {
	case <-ch:
		t.Fatal("channel fired before any sentinel was written")
	case <-time.After(100 * time.Millisecond):
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600); err != nil {
		t.Fatalf("failed to write sentinel: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("channel did not fire after sentinel was written")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("sentinel was not removed after detection")
	}
}

func TestStopChannel_IgnoresStaleSentinel(t *testing.T) {
	path, err := stopFilePath(os.Getpid())
	if err != nil {
		t.Fatalf("stopFilePath failed: %v", err)
	}

	// A sentinel left behind by an earlier process that reused this PID
	// must not shut the new daemon down.
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("stale\n"), 0600); err != nil {
		t.Fatalf("failed to write stale sentinel: %v", err)
	}

	ch := StopChannel()

	time.Sleep(100 * time.Millisecond)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("stale sentinel was not cleaned up")
	}

	select {
	case <-ch:
		t.Fatal("channel fired on a stale sentinel")
	case <-time.After(stopPollInterval + 200*time.Millisecond):
	}
}
