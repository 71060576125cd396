package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/projdex/projdex/daemon"
	"github.com/projdex/projdex/index"
	"github.com/projdex/projdex/indexer"
	"github.com/projdex/projdex/watcher"
)

var (
	watchBackground bool
	watchStop       bool
	watchStatus     bool
	watchLogDir     string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch directories and keep the index fresh",
	Long: `Watch the workspace's directories for changes and keep the index up
to date. An initial scan runs first; after that, filesystem events
refresh individual projects and a periodic rescan catches anything
the events missed.

Run with --background to detach a daemon, --stop to stop it, and
--status to check on it.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVarP(&watchBackground, "background", "b", false, "Run in the background as a daemon")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "Stop the background daemon")
	watchCmd.Flags().BoolVar(&watchStatus, "status", false, "Show background daemon status")
	watchCmd.Flags().StringVar(&watchLogDir, "log-dir", "", "Directory for daemon log and PID files")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	modeCount := 0
	for _, set := range []bool{watchBackground, watchStop, watchStatus} {
		if set {
			modeCount++
		}
	}
	if modeCount > 1 {
		return fmt.Errorf("--background, --stop, and --status are mutually exclusive")
	}

	logDir := watchLogDir
	if logDir == "" {
		var err error
		logDir, err = daemon.GetDefaultLogDir()
		if err != nil {
			return fmt.Errorf("failed to determine log directory: %w", err)
		}
	}

	switch {
	case watchStop:
		return stopWatchDaemon(logDir)
	case watchStatus:
		return showWatchStatus(logDir)
	case watchBackground:
		return startBackgroundWatch(logDir)
	default:
		return runWatchForeground(cmd.Context(), logDir)
	}
}

func runWatchForeground(ctx context.Context, logDir string) error {
	isBackgroundChild := os.Getenv(daemon.EnvBackground) == "1"

	if isBackgroundChild {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
		log.SetPrefix("[projdex-watch] ")
	}

	if pid, _ := daemon.GetRunningPID(logDir); pid > 0 && pid != os.Getpid() {
		return fmt.Errorf("projdex watch is already running (PID %d); stop it with 'projdex watch --stop'", pid)
	}

	if isBackgroundChild {
		if err := daemon.WritePIDFile(logDir); err != nil {
			log.Printf("Warning: failed to write PID file: %v", err)
		} else {
			defer func() {
				if err := daemon.RemovePIDFile(logDir); err != nil {
					log.Printf("Warning: failed to remove PID file: %v", err)
				}
			}()
		}
		defer func() {
			if err := daemon.RemoveReadyFile(logDir); err != nil {
				log.Printf("Warning: failed to remove ready file: %v", err)
			}
		}()
	}

	eng, cfg, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	ix := newIndexer(eng, cfg)

	// Initial scan with progress
	if !isBackgroundChild {
		fmt.Println("Performing initial scan...")
	} else {
		log.Println("Performing initial scan...")
	}

	var onProgress indexer.ProgressCallback
	if !isBackgroundChild {
		onProgress = func(info indexer.ProgressInfo) {
			printProgress(info.Current, info.Total, info.Path)
		}
	}
	stats, err := ix.RebuildWithProgress(ctx, onProgress)
	if !isBackgroundChild {
		// Clear progress line
		fmt.Print("\r" + strings.Repeat(" ", 80) + "\r")
	}
	if err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}

	summary := fmt.Sprintf("Initial scan complete: %d projects (%d added, %d kept, %d removed) in %s",
		stats.Discovered, stats.Added, stats.Kept, stats.Removed, stats.Duration.Round(time.Millisecond))
	if !isBackgroundChild {
		fmt.Println(summary)
	} else {
		log.Println(summary)
	}

	if isBackgroundChild {
		if err := daemon.WriteReadyFile(logDir); err != nil {
			log.Printf("Warning: failed to write ready file: %v", err)
		}
	}

	roots := eng.WatchedDirs()
	w, err := watcher.New(roots, time.Duration(cfg.Watch.DebounceMs)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()

	if err := w.Start(watchCtx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	if !isBackgroundChild {
		fmt.Printf("Watching %d directories for changes... (Press Ctrl+C to stop)\n", len(roots))
	} else {
		log.Printf("Watching %d directories", len(roots))
	}

	// Handle signals at top level
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	stopCh := daemon.StopChannel()
	go func() {
		select {
		case <-sigChan:
			if !isBackgroundChild {
				fmt.Println("\nShutting down...")
			} else {
				log.Println("Shutting down...")
			}
			watchCancel()
		case <-stopCh:
			log.Println("Stop file detected, shutting down...")
			watchCancel()
		case <-watchCtx.Done():
		}
	}()

	var rescanC <-chan time.Time
	if cfg.Watch.RescanMinutes > 0 {
		ticker := time.NewTicker(time.Duration(cfg.Watch.RescanMinutes) * time.Minute)
		defer ticker.Stop()
		rescanC = ticker.C
	}

	for {
		select {
		case <-watchCtx.Done():
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			handleDirEvent(watchCtx, eng, ix, ev, isBackgroundChild)

		case <-rescanC:
			log.Println("Periodic rescan starting")
			rescanStats, err := ix.Rebuild(watchCtx)
			if err != nil {
				log.Printf("Warning: periodic rescan failed: %v", err)
				continue
			}
			log.Printf("Periodic rescan complete: %d projects (%d added, %d kept, %d removed) in %s",
				rescanStats.Discovered, rescanStats.Added, rescanStats.Kept, rescanStats.Removed,
				rescanStats.Duration.Round(time.Millisecond))
		}
	}
}

// handleDirEvent refreshes the index for one changed directory. The
// cache entry is dropped first: attribute-only changes do not move the
// directory's mtime, so a hit would serve stale tags.
func handleDirEvent(ctx context.Context, eng *index.Engine, ix *indexer.Indexer, ev watcher.DirEvent, isBackgroundChild bool) {
	eng.Cache().Invalidate(ev.Path)

	stats, err := ix.Refresh(ctx, []string{ev.Path})
	if err != nil {
		log.Printf("Warning: failed to refresh %s: %v", ev.Path, err)
		return
	}

	msg := fmt.Sprintf("%s: %s (%d added, %d kept, %d removed)",
		ev.Type, ev.Path, stats.Added, stats.Kept, stats.Removed)
	if isBackgroundChild {
		log.Println(msg)
	} else {
		fmt.Println(msg)
	}
}

func startBackgroundWatch(logDir string) error {
	if pid, _ := daemon.GetRunningPID(logDir); pid > 0 {
		fmt.Printf("projdex watch is already running (PID %d)\n", pid)
		return nil
	}

	pid, exitCh, err := daemon.SpawnBackground(logDir, []string{"watch"})
	if err != nil {
		return fmt.Errorf("failed to start background watch: %w", err)
	}

	fmt.Printf("Started projdex watch in the background (PID %d)\n", pid)
	fmt.Printf("Logs: %s\n", daemon.LogPath(logDir))

	// Wait for the initial scan so a following 'projdex list' sees a
	// populated index.
	fmt.Print("Waiting for initial scan to complete...")
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if daemon.IsReady(logDir) {
			fmt.Println(" done")
			return nil
		}
		select {
		case <-exitCh:
			fmt.Println()
			return fmt.Errorf("background process exited early; check the log at %s", daemon.LogPath(logDir))
		case <-time.After(250 * time.Millisecond):
		}
	}

	fmt.Println()
	fmt.Println("Still scanning; check progress with 'projdex watch --status'.")
	return nil
}

func stopWatchDaemon(logDir string) error {
	pid, err := daemon.GetRunningPID(logDir)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}
	if pid == 0 {
		fmt.Println("projdex watch is not running.")
		return nil
	}

	if err := daemon.StopProcess(pid); err != nil {
		return fmt.Errorf("failed to stop process %d: %w", pid, err)
	}

	fmt.Printf("Stopping projdex watch (PID %d)...", pid)
	deadline := time.Now().Add(30 * time.Second)
	nextProgress := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !daemon.IsProcessRunning(pid) {
			if err := daemon.RemovePIDFile(logDir); err != nil {
				log.Printf("Warning: failed to remove PID file: %v", err)
			}
			fmt.Println(" stopped")
			return nil
		}
		if time.Now().After(nextProgress) {
			fmt.Print(".")
			nextProgress = time.Now().Add(5 * time.Second)
		}
		time.Sleep(500 * time.Millisecond)
	}

	fmt.Println()
	return fmt.Errorf("process %d did not stop within 30 seconds", pid)
}

func showWatchStatus(logDir string) error {
	pid, _ := daemon.GetRunningPID(logDir)
	if pid == 0 {
		fmt.Println("projdex watch is not running.")
		return nil
	}

	fmt.Printf("projdex watch is running (PID %d)\n", pid)
	if daemon.IsReady(logDir) {
		fmt.Println("Initial scan: complete")
	} else {
		fmt.Println("Initial scan: in progress")
	}
	fmt.Printf("Logs: %s\n", daemon.LogPath(logDir))
	return nil
}
