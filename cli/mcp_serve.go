package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/projdex/projdex/config"
	"github.com/projdex/projdex/mcp"
)

var mcpServeCmd = &cobra.Command{
	Use:   "mcp-serve [workspace-path]",
	Short: "Start projdex as an MCP server",
	Long: `Start projdex as an MCP (Model Context Protocol) server.

This lets AI agents query and edit the project index as a native tool.
The server communicates via stdio and exposes the following tools:

  - projdex_list_projects: List indexed projects, optionally by tag
  - projdex_projects_for_tag: Projects carrying a tag
  - projdex_tags_for_project: Tags on one project
  - projdex_list_tags: All tags with counts
  - projdex_tag_project / projdex_untag_project: Edit a project's tags
  - projdex_rename_tag / projdex_delete_tag: Tag-wide mutations
  - projdex_rebuild_index: Rescan the watched directories
  - projdex_index_status: Index health and statistics

Arguments:
  workspace-path  Optional path to the projdex workspace. If not
                  provided, searches for .projdex from the current
                  directory upward.

Configuration for Claude Code:
  claude mcp add projdex -- projdex mcp-serve

Configuration for Cursor (.cursor/mcp.json):
  {
    "mcpServers": {
      "projdex": {
        "command": "projdex",
        "args": ["mcp-serve"]
      }
    }
  }`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMCPServe,
}

func init() {
	rootCmd.AddCommand(mcpServeCmd)
}

func runMCPServe(cmd *cobra.Command, args []string) error {
	var root string
	if len(args) > 0 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
		if !config.Exists(abs) {
			return fmt.Errorf("no projdex workspace found at %s (run 'projdex init' first)", abs)
		}
		root = abs
	} else {
		var err error
		root, err = config.FindWorkspaceRoot()
		if err != nil {
			return err
		}
	}

	srv, err := mcp.NewServer(root)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return srv.Serve()
}
