package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/projdex/projdex/index"
)

var deleteTagYes bool

var tagCmd = &cobra.Command{
	Use:   "tag <project> <tag>...",
	Short: "Add tags to a project",
	Long: `Add one or more tags to a project. The project may be referenced by
path, name, or ID prefix. Tags are written to the project directory
itself, then the index is updated.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runTag,
}

var untagCmd = &cobra.Command{
	Use:   "untag <project> <tag>...",
	Short: "Remove tags from a project",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runUntag,
}

var renameTagCmd = &cobra.Command{
	Use:   "rename-tag <old> <new>",
	Short: "Rename a tag across every project",
	Long: `Rename a tag everywhere it appears. The tag's color, hidden state,
and selection membership move with it. Projects already carrying the
new name end up with a single copy.`,
	Args: cobra.ExactArgs(2),
	RunE: runRenameTag,
}

var deleteTagCmd = &cobra.Command{
	Use:   "delete-tag <tag>",
	Short: "Delete a tag from every project",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteTag,
}

func init() {
	deleteTagCmd.Flags().BoolVar(&deleteTagYes, "yes", false, "Delete without confirmation")

	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(untagCmd)
	rootCmd.AddCommand(renameTagCmd)
	rootCmd.AddCommand(deleteTagCmd)
}

func runTag(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, _, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	p, err := resolveProject(eng, args[0])
	if err != nil {
		return err
	}
	for _, tag := range args[1:] {
		if err := eng.AddTagToProject(ctx, p.ID, tag); err != nil {
			return fmt.Errorf("failed to tag %s: %w", p.Name, err)
		}
	}
	fmt.Printf("Tagged %s: %s\n", p.Name, strings.Join(args[1:], ", "))
	return nil
}

func runUntag(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, _, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	p, err := resolveProject(eng, args[0])
	if err != nil {
		return err
	}
	for _, tag := range args[1:] {
		if err := eng.RemoveTagFromProject(ctx, p.ID, tag); err != nil {
			return fmt.Errorf("failed to untag %s: %w", p.Name, err)
		}
	}
	fmt.Printf("Untagged %s: %s\n", p.Name, strings.Join(args[1:], ", "))
	return nil
}

func runRenameTag(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	old, new := args[0], args[1]

	eng, _, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	result, err := runTagMutation(eng, func() error {
		return eng.RenameTagEverywhere(ctx, old, new)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Renamed tag %q to %q in %d project(s).\n", old, new, result.Affected)
	return nil
}

func runDeleteTag(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tag := args[0]

	eng, _, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	carriers := len(eng.ProjectsForTag(tag))
	if !deleteTagYes {
		reader := bufio.NewReader(os.Stdin)
		fmt.Printf("Delete tag %q from %d project(s)? [y/N]: ", tag, carriers)
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(strings.ToLower(input))
		if input != "y" && input != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	result, err := runTagMutation(eng, func() error {
		return eng.DeleteTagEverywhere(ctx, tag)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Deleted tag %q from %d project(s).\n", tag, result.Affected)
	return nil
}

// runTagMutation starts a cross-project mutation and blocks until its
// background phase settles, surfacing guard rejections as errors.
func runTagMutation(eng *index.Engine, start func() error) (index.MutationResult, error) {
	var result index.MutationResult
	eng.SetOnMutationComplete(func(r index.MutationResult) { result = r })

	if err := start(); err != nil {
		return index.MutationResult{}, err
	}
	eng.Wait()

	if result.Err != nil {
		if result.Recovered {
			return result, fmt.Errorf("mutation rejected, previous state restored: %w", result.Err)
		}
		return result, result.Err
	}
	return result, nil
}
