//go:build !windows
// +build !windows

package daemon

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// IsProcessRunning reports whether a process with the given PID exists.
// Signal 0 probes for existence without delivering anything; it fails
// when the process is gone or belongs to another user.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// sysProcAttr places the child in its own process group so closing the
// parent's terminal does not take the daemon down with it.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// exitMonitor detects child exit through an inherited pipe. The child
// holds the write end for its whole lifetime; when it exits the kernel
// closes every descriptor it owns and the parent's read end sees EOF.
// Unlike polling kill(0), this works even while the child is a zombie.
type exitMonitor struct {
	r *os.File
	w *os.File
}

func newExitMonitor() (*exitMonitor, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create exit pipe: %w", err)
	}
	return &exitMonitor{r: r, w: w}, nil
}

// attach hands the write end of the pipe to the child command.
func (m *exitMonitor) attach(cmd *exec.Cmd) {
	cmd.ExtraFiles = []*os.File{m.w}
}

// watch closes the parent's copy of the write end and returns a channel
// closed when the child exits.
func (m *exitMonitor) watch(_ int) <-chan struct{} {
	m.w.Close()
	ch := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		// The child never writes; this blocks until EOF or a close from
		// our own side, either of which means monitoring is over.
		if _, err := m.r.Read(buf); err != nil && err != io.EOF {
			_ = err
		}
		m.r.Close()
		close(ch)
	}()
	return ch
}

// discard tears the pipe down when the child failed to start.
func (m *exitMonitor) discard() {
	m.r.Close()
	m.w.Close()
}

// StopProcess asks the daemon to shut down by sending SIGINT, the same
// signal a foreground Ctrl-C delivers.
func StopProcess(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("failed to send interrupt signal: %w", err)
	}
	return nil
}

// StopChannel returns a channel that never fires. Unix shutdown goes
// through os/signal; there is no second stop mechanism to watch.
func StopChannel() <-chan struct{} {
	return make(chan struct{})
}
