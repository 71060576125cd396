package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/projdex/projdex/daemon"
	"github.com/projdex/projdex/index"
)

var (
	statusJSON bool
	statusTOON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and watch daemon status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output results as JSON")
	statusCmd.Flags().BoolVar(&statusTOON, "toon", false, "Output results in TOON format (token-efficient)")
	statusCmd.MarkFlagsMutuallyExclusive("json", "toon")

	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	WorkspaceRoot string            `json:"workspace_root"`
	Backend       string            `json:"backend"`
	TagSource     string            `json:"tag_source"`
	WatchedDirs   []string          `json:"watched_dirs"`
	Selection     []string          `json:"selection,omitempty"`
	Index         index.EngineStats `json:"index"`
	WatchRunning  bool              `json:"watch_running"`
	WatchPID      int               `json:"watch_pid,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, cfg, root, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	out := statusOutput{
		WorkspaceRoot: root,
		Backend:       cfg.Store.Backend,
		TagSource:     cfg.Tags.Source,
		WatchedDirs:   eng.WatchedDirs(),
		Selection:     eng.Selection(),
		Index:         eng.Stats(),
	}
	if logDir, err := daemon.GetDefaultLogDir(); err == nil {
		if pid, _ := daemon.GetRunningPID(logDir); pid > 0 {
			out.WatchRunning = true
			out.WatchPID = pid
		}
	}

	if statusJSON {
		return outputJSON(out)
	}
	if statusTOON {
		return outputTOON(out)
	}

	fmt.Printf("Workspace: %s\n", out.WorkspaceRoot)
	fmt.Printf("Backend:   %s\n", out.Backend)
	fmt.Printf("Tags via:  %s\n", out.TagSource)
	fmt.Printf("Watched:   %s\n", strings.Join(out.WatchedDirs, ", "))
	if len(out.Selection) > 0 {
		fmt.Printf("Selection: %s\n", strings.Join(out.Selection, ", "))
	}
	fmt.Println()
	fmt.Printf("Projects:  %d\n", out.Index.Projects)
	fmt.Printf("Tags:      %d\n", out.Index.Tags)
	fmt.Printf("Cached:    %d directory entries\n", out.Index.CacheEntries)
	fmt.Printf("Saves:     %d (%d failed)\n", out.Index.Saves, out.Index.SaveErrors)
	if out.Index.Recoveries > 0 {
		fmt.Printf("Recovered: %d rejected mutation(s)\n", out.Index.Recoveries)
	}
	if !out.Index.LastSave.IsZero() {
		fmt.Printf("Last save: %s\n", out.Index.LastSave.Format(time.RFC3339))
	}
	fmt.Println()
	if out.WatchRunning {
		fmt.Printf("Watch daemon: running (PID %d)\n", out.WatchPID)
	} else {
		fmt.Println("Watch daemon: not running (start it with 'projdex watch -b')")
	}
	return nil
}
