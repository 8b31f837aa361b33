package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/newhook/runlens/internal/result"
)

var (
	flagHistoryLimit int
	flagHistoryKeep  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and maintain the run history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a recorded run",
	Long:  `Show a recorded run. The ID may be any unique prefix; without one the latest run is shown.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old runs and their logs",
	Long:  `Delete all but the newest runs, along with their stored logs. Defaults to history.keep_runs from the config.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

func init() {
	historyListCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "maximum runs to list (0 lists all)")
	historyPruneCmd.Flags().IntVar(&flagHistoryKeep, "keep", -1, "number of runs to keep (default: history.keep_runs)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
	historyCmd.AddCommand(migrateCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer proj.Close()

	store, err := proj.DB(ctx)
	if err != nil {
		return err
	}
	runs, err := store.ListRuns(ctx, flagHistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	r, err := newRenderer(out)
	if err != nil {
		return err
	}
	return r.History(out, runs)
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer proj.Close()

	store, err := proj.DB(ctx)
	if err != nil {
		return err
	}

	run, err := store.LatestRun(ctx)
	if len(args) == 1 {
		run, err = store.GetRun(ctx, args[0])
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	r, err := newRenderer(out)
	if err != nil {
		return err
	}
	if err := r.Run(out, run.Result); err != nil {
		return err
	}

	if !consoleOutput() {
		return nil
	}
	counts, err := store.FailureCounts(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to count failures: %w", err)
	}
	if len(counts) > 0 {
		kinds := make([]result.Kind, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		fmt.Fprintf(out, "\nRun %s failures by kind:\n", run.ID)
		for _, k := range kinds {
			fmt.Fprintf(out, "  %-14s %d\n", k, counts[k])
		}
	}
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer proj.Close()

	keep := flagHistoryKeep
	if !cmd.Flags().Changed("keep") || keep < 0 {
		keep = proj.Config.History.GetKeepRuns()
		if keep == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Retention disabled (keep_runs = 0); nothing pruned.")
			return nil
		}
	}

	t, err := newTracker(ctx, proj, true)
	if err != nil {
		return err
	}
	removed, err := t.Prune(ctx, keep)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s), kept the newest %d.\n", len(removed), keep)
	return nil
}
