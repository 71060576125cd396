package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/projdex/projdex/indexer"
)

var (
	scanJSON bool
	scanTOON bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover projects and rebuild the index",
	Long: `Scan the watched directories, read tags from each project directory,
and rebuild the index. Directories whose modification time and size
are unchanged are served from the metadata cache, so repeat scans
stay fast.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Output results as JSON")
	scanCmd.Flags().BoolVar(&scanTOON, "toon", false, "Output results in TOON format (token-efficient)")
	scanCmd.MarkFlagsMutuallyExclusive("json", "toon")

	rootCmd.AddCommand(scanCmd)
}

type scanResult struct {
	Discovered int    `json:"discovered"`
	Added      int    `json:"added"`
	Kept       int    `json:"kept"`
	Removed    int    `json:"removed"`
	Duration   string `json:"duration"`
	Projects   int    `json:"projects"`
	Tags       int    `json:"tags"`
	FromCache  int    `json:"from_cache"`
	FromSource int    `json:"from_source"`
	ReadErrors int    `json:"read_errors,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, cfg, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	quiet := scanJSON || scanTOON
	var onProgress indexer.ProgressCallback
	if !quiet {
		fmt.Println("Scanning watched directories...")
		onProgress = func(info indexer.ProgressInfo) {
			printProgress(info.Current, info.Total, info.Path)
		}
	}

	ix := newIndexer(eng, cfg)
	stats, err := ix.RebuildWithProgress(ctx, onProgress)
	if !quiet {
		// Clear progress line
		fmt.Print("\r" + strings.Repeat(" ", 80) + "\r")
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	engStats := eng.Stats()
	loadStats := ix.LoaderStats()
	result := scanResult{
		Discovered: stats.Discovered,
		Added:      stats.Added,
		Kept:       stats.Kept,
		Removed:    stats.Removed,
		Duration:   stats.Duration.Round(time.Millisecond).String(),
		Projects:   engStats.Projects,
		Tags:       engStats.Tags,
		FromCache:  loadStats.Cached,
		FromSource: loadStats.Loaded,
		ReadErrors: loadStats.Failed,
	}

	if scanJSON {
		return outputJSON(result)
	}
	if scanTOON {
		return outputTOON(result)
	}

	fmt.Printf("Scan complete: %d projects discovered, %d added, %d kept, %d removed (took %s)\n",
		result.Discovered, result.Added, result.Kept, result.Removed, result.Duration)
	fmt.Printf("Tags: %d from cache, %d read from source", result.FromCache, result.FromSource)
	if result.ReadErrors > 0 {
		fmt.Printf(", %d failed", result.ReadErrors)
	}
	fmt.Println()
	fmt.Printf("Index now holds %d projects across %d tags.\n", result.Projects, result.Tags)
	return nil
}

// printProgress displays a progress bar for scanning
func printProgress(current, total int, dirPath string) {
	if total == 0 {
		return
	}

	// Calculate percentage
	percent := float64(current) / float64(total) * 100

	// Build progress bar (20 chars width)
	barWidth := 20
	filled := int(float64(barWidth) * float64(current) / float64(total))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	// Truncate directory path if too long
	maxPathLen := 35
	displayPath := dirPath
	if len(dirPath) > maxPathLen {
		displayPath = "..." + dirPath[len(dirPath)-maxPathLen+3:]
	}

	// Print with carriage return to overwrite previous line
	fmt.Printf("\rScanning [%s] %3.0f%% (%d/%d) %s", bar, percent, current, total, displayPath)
}
