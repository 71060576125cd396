// Package cli implements the projdex command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "projdex",
	Short: "Tag-based project index",
	Long: `Projdex keeps a tagged index of the project directories under your
watched folders. Tags live on the directories themselves (extended
attributes or sidecar files) so they survive renames and re-clones;
projdex maintains a fast queryable index on top.

Typical flow:
  projdex init                Set up a workspace
  projdex scan                Discover projects and read their tags
  projdex tag myproject go    Add a tag to a project
  projdex list --tag go       Query the index
  projdex watch               Keep the index fresh automatically`,
	SilenceUsage: true,
}

// Execute runs the projdex CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
