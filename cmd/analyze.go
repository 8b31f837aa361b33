package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/newhook/runlens/internal/db"
	"github.com/newhook/runlens/internal/result"
)

var (
	flagAnalyzeWorkflows []string
	flagAnalyzeSave      bool
	flagAnalyzeExitCode  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [log...]",
	Short: "Analyze CI run logs",
	Long: `Analyze one or more CI run logs and print their workflows, jobs, steps and
failures. With no arguments, or "-", the log is read from stdin.

With --save each log is recorded in the run history and compared with the run
recorded before it.

Example:
  act -j test 2>&1 | runlens analyze --save
  runlens analyze --format markdown build.log`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringSliceVarP(&flagAnalyzeWorkflows, "workflow", "w", nil, "known workflow name (repeatable); added to names discovered in the workflows dir")
	analyzeCmd.Flags().BoolVar(&flagAnalyzeSave, "save", false, "record the run in history and compare with the previous run")
	analyzeCmd.Flags().BoolVar(&flagAnalyzeExitCode, "exit-code", false, "exit non-zero when a run failed")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer proj.Close()

	t, err := newTracker(ctx, proj, flagAnalyzeSave, flagAnalyzeWorkflows...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	r, err := newRenderer(out)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = []string{"-"}
	}

	failed := false
	if flagAnalyzeSave {
		for _, path := range args {
			text, err := readLog(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			ing, err := t.Ingest(ctx, text)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := r.Run(out, ing.Result); err != nil {
				return err
			}
			if consoleOutput() {
				fmt.Fprintf(out, "\nSaved run %s", db.ShortID(ing.ID))
				if ing.PreviousID != "" {
					fmt.Fprintf(out, " (previous %s)", db.ShortID(ing.PreviousID))
				}
				fmt.Fprint(out, "\n\n")
			}
			if err := r.Comparison(out, ing.Comparison); err != nil {
				return err
			}
			failed = failed || !ing.Result.Success
		}
	} else {
		var runs []*result.ExecutionResult
		if len(args) == 1 && args[0] == "-" {
			text, err := readLog(cmd.InOrStdin(), "-")
			if err != nil {
				return err
			}
			run, err := t.Analyze(ctx, text)
			if err != nil {
				return err
			}
			runs = append(runs, run)
		} else {
			if runs, err = t.AnalyzeFiles(ctx, args); err != nil {
				return err
			}
		}
		for i, run := range runs {
			if i > 0 {
				fmt.Fprintln(out)
			}
			if err := r.Run(out, run); err != nil {
				return err
			}
			failed = failed || !run.Success
		}
	}

	if flagAnalyzeExitCode && failed {
		return errRunFailed
	}
	return nil
}

// readLog reads path, or stdin when path is "-".
func readLog(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read log: %w", err)
	}
	return string(data), nil
}
