package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/projdex/projdex/index"
)

var (
	listTag      string
	listSelected bool
	listJSON     bool
	listTOON     bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed projects",
	Long: `List the projects in the index, optionally filtered by tag.

--selected applies the persisted tag selection (see 'projdex select'):
only projects carrying every selected tag are shown.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listTag, "tag", "t", "", "Only projects carrying this tag")
	listCmd.Flags().BoolVar(&listSelected, "selected", false, "Only projects matching the current tag selection")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output results as JSON")
	listCmd.Flags().BoolVar(&listTOON, "toon", false, "Output results in TOON format (token-efficient)")
	listCmd.MarkFlagsMutuallyExclusive("json", "toon")

	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	eng, _, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	var projects []index.Project
	if listTag != "" {
		projects = eng.ProjectsForTag(listTag)
	} else {
		projects = eng.AllProjects()
	}
	if listSelected {
		projects = index.FilterByTags(projects, eng.Selection())
	}
	sort.Slice(projects, func(i, j int) bool {
		return strings.ToLower(projects[i].Name) < strings.ToLower(projects[j].Name)
	})

	if listJSON {
		return outputJSON(projects)
	}
	if listTOON {
		return outputTOON(projects)
	}

	if len(projects) == 0 {
		fmt.Println("No projects found. Run 'projdex scan' to index your watched directories.")
		return nil
	}

	fmt.Printf("Projects (%d):\n", len(projects))
	fmt.Println(strings.Repeat("-", 60))
	for _, p := range projects {
		line := nameStyle.Render(p.Name)
		if len(p.Tags) > 0 {
			line += "  [" + renderTagList(eng, p.Tags) + "]"
		}
		fmt.Println(line)
		fmt.Printf("  %s\n", pathStyle.Render(p.Path))
	}
	return nil
}
