package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/projdex/projdex/index"
)

var (
	tagColorName  string
	tagColorClear bool
	selectClear   bool
)

var tagColorCmd = &cobra.Command{
	Use:   "tag-color <tag> [color]",
	Short: "Set or clear a tag's display color",
	Long: `Set the display color for a tag. Colors may be given as hex (#ff8800)
or as comma-separated channels (255,136,0 or 255,136,0,255).

Without a color argument the current color is printed. With --clear
the color is removed.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runTagColor,
}

var hideTagCmd = &cobra.Command{
	Use:   "hide-tag <tag>",
	Short: "Hide a tag from default listings",
	Args:  cobra.ExactArgs(1),
	RunE:  runHideTag,
}

var unhideTagCmd = &cobra.Command{
	Use:   "unhide-tag <tag>",
	Short: "Show a hidden tag in listings again",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnhideTag,
}

var selectCmd = &cobra.Command{
	Use:   "select [tag...]",
	Short: "Set the persisted tag selection",
	Long: `Set the tag selection applied by 'projdex list --selected'. With no
arguments the current selection is printed. --clear empties it.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSelect,
}

func init() {
	tagColorCmd.Flags().StringVar(&tagColorName, "name", "", "Human-readable name for the color")
	tagColorCmd.Flags().BoolVar(&tagColorClear, "clear", false, "Remove the tag's color")
	selectCmd.Flags().BoolVar(&selectClear, "clear", false, "Clear the selection")

	rootCmd.AddCommand(tagColorCmd)
	rootCmd.AddCommand(hideTagCmd)
	rootCmd.AddCommand(unhideTagCmd)
	rootCmd.AddCommand(selectCmd)
}

func runTagColor(cmd *cobra.Command, args []string) error {
	eng, _, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	tag := args[0]
	if tagColorClear {
		eng.ClearTagColor(tag)
		fmt.Printf("Cleared color for tag %q.\n", tag)
		return nil
	}

	if len(args) < 2 {
		c, ok := eng.TagColor(tag)
		if !ok {
			fmt.Printf("Tag %q has no color set.\n", tag)
			return nil
		}
		line := fmt.Sprintf("%s %s %s", tagSwatch(c), tag, c.Hex())
		if c.Name != "" {
			line += " (" + c.Name + ")"
		}
		fmt.Println(line)
		return nil
	}

	c, err := parseTagColor(args[1])
	if err != nil {
		return err
	}
	c.Name = tagColorName
	eng.SetTagColor(tag, c)
	fmt.Printf("%s Tag %q colored %s.\n", tagSwatch(c), tag, c.Hex())
	return nil
}

func runHideTag(cmd *cobra.Command, args []string) error {
	eng, _, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	eng.HideTag(args[0])
	fmt.Printf("Tag %q is now hidden from listings (use --all to see it).\n", args[0])
	return nil
}

func runUnhideTag(cmd *cobra.Command, args []string) error {
	eng, _, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	eng.UnhideTag(args[0])
	fmt.Printf("Tag %q is visible again.\n", args[0])
	return nil
}

func runSelect(cmd *cobra.Command, args []string) error {
	eng, _, _, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	if selectClear {
		eng.SelectTags(nil)
		fmt.Println("Selection cleared.")
		return nil
	}
	if len(args) == 0 {
		sel := eng.Selection()
		if len(sel) == 0 {
			fmt.Println("No tags selected.")
			return nil
		}
		fmt.Printf("Selected: %s\n", strings.Join(sel, ", "))
		return nil
	}

	eng.SelectTags(args)
	fmt.Printf("Selected: %s\n", strings.Join(args, ", "))
	return nil
}

// parseTagColor accepts #rrggbb hex or r,g,b[,a] channel notation.
func parseTagColor(s string) (index.TagColor, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		if len(hex) != 6 {
			return index.TagColor{}, fmt.Errorf("hex color must be #rrggbb, got %q", s)
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return index.TagColor{}, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
		return index.TagColor{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return index.TagColor{}, fmt.Errorf("color must be #rrggbb or r,g,b[,a], got %q", s)
	}
	ch := [4]uint8{0, 0, 0, 255}
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return index.TagColor{}, fmt.Errorf("invalid color channel %q: %w", part, err)
		}
		ch[i] = uint8(v)
	}
	return index.TagColor{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}, nil
}
