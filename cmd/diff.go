package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newhook/runlens/internal/result"
	"github.com/newhook/runlens/internal/tracker"
)

var flagDiffFiles bool

var diffCmd = &cobra.Command{
	Use:   "diff [current-id [previous-id]]",
	Short: "Compare two runs",
	Long: `Compare two runs and list new, resolved and persistent failures.

Without arguments the latest recorded run is compared with the run before it.
Run IDs may be abbreviated to any unique prefix. With --files the two
arguments are log files, analyzed without touching history.

Example:
  runlens diff
  runlens diff 3f2a9c1e
  runlens diff --files today.log yesterday.log`,
	Args: func(cmd *cobra.Command, args []string) error {
		if flagDiffFiles {
			return cobra.ExactArgs(2)(cmd, args)
		}
		return cobra.MaximumNArgs(2)(cmd, args)
	},
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().BoolVar(&flagDiffFiles, "files", false, "compare two log files instead of stored runs")
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer proj.Close()

	t, err := newTracker(ctx, proj, !flagDiffFiles)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	r, err := newRenderer(out)
	if err != nil {
		return err
	}

	var c *result.ComparisonResult
	if flagDiffFiles {
		c, err = t.DiffFiles(ctx, args[0], args[1])
	} else {
		var cur, prev string
		if len(args) > 0 {
			cur = args[0]
		}
		if len(args) > 1 {
			prev = args[1]
		}
		c, err = t.Diff(ctx, cur, prev)
	}
	if errors.Is(err, tracker.ErrNoPrevious) {
		fmt.Fprintln(out, "Nothing to compare:", err)
		return nil
	}
	if err != nil {
		return err
	}
	return r.Comparison(out, c)
}
