package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var (
	tagsAll  bool
	tagsJSON bool
	tagsTOON bool
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List tags with project counts",
	Long: `List every known tag with the number of projects carrying it.

Hidden tags are omitted unless --all is given. Tags with a configured
color show a swatch.`,
	Args: cobra.NoArgs,
	RunE: runTags,
}

func init() {
	tagsCmd.Flags().BoolVarP(&tagsAll, "all", "a", false, "Include hidden tags")
	tagsCmd.Flags().BoolVar(&tagsJSON, "json", false, "Output results as JSON")
	tagsCmd.Flags().BoolVar(&tagsTOON, "toon", false, "Output results in TOON format (token-efficient)")
	tagsCmd.MarkFlagsMutuallyExclusive("json", "toon")

	rootCmd.AddCommand(tagsCmd)
}

type tagEntry struct {
	Tag    string `json:"tag"`
	Count  int    `json:"count"`
	Color  string `json:"color,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

func runTags(cmd *cobra.Command, args []string) error {
	eng, _, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	// Union of tags seen on projects and tags known only to the
	// registry (colored or hidden but currently unused).
	counts := make(map[string]int)
	for _, tc := range eng.AllTags() {
		counts[tc.Tag] = tc.Count
	}
	for _, tag := range eng.KnownTags() {
		if _, ok := counts[tag]; !ok {
			counts[tag] = 0
		}
	}

	entries := make([]tagEntry, 0, len(counts))
	for tag, count := range counts {
		hidden := eng.IsTagHidden(tag)
		if hidden && !tagsAll {
			continue
		}
		entry := tagEntry{Tag: tag, Count: count, Hidden: hidden}
		if c, ok := eng.TagColor(tag); ok {
			entry.Color = c.Hex()
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Tag < entries[j].Tag })

	if tagsJSON {
		return outputJSON(entries)
	}
	if tagsTOON {
		return outputTOON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No tags yet. Tag a project with 'projdex tag <project> <tag>'.")
		return nil
	}

	fmt.Printf("Tags (%d):\n", len(entries))
	fmt.Println(strings.Repeat("-", 60))
	for _, e := range entries {
		swatch := "  "
		if c, ok := eng.TagColor(e.Tag); ok {
			swatch = tagSwatch(c)
		}
		marker := ""
		if e.Hidden {
			marker = " (hidden)"
		}
		fmt.Printf("%s %-24s %3d project(s)%s\n", swatch, e.Tag, e.Count, marker)
	}

	if sel := eng.Selection(); len(sel) > 0 {
		fmt.Printf("\nSelection: %s\n", strings.Join(sel, ", "))
	}
	return nil
}
