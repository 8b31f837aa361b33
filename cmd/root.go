package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/newhook/runlens/internal/analyze"
	"github.com/newhook/runlens/internal/extract"
	"github.com/newhook/runlens/internal/logging"
	"github.com/newhook/runlens/internal/project"
	"github.com/newhook/runlens/internal/render"
	rlsignal "github.com/newhook/runlens/internal/signal"
	"github.com/newhook/runlens/internal/tracker"
	"github.com/newhook/runlens/internal/workflow"
)

var (
	// rootCtx holds the signal-cancellable context for the application
	rootCtx    context.Context
	rootCancel context.CancelFunc

	flagProject string
	flagVerbose bool
	flagFormat  string
)

// errRunFailed makes the process exit non-zero without printing an error.
var errRunFailed = errors.New("run failed")

var rootCmd = &cobra.Command{
	Use:   "runlens",
	Short: "Extract, structure and compare failures in CI run logs",
	Long: `runlens reads the raw output of a CI run (GitHub Actions or act), pulls out the
failures, rebuilds the workflow/job/step structure and compares the run with
the one before it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Create a cancellable context with signal handling
		rootCtx, rootCancel = rlsignal.WithSignalCancel(context.Background())

		// Log into the project only when one exists; never create .runlens
		// as a side effect of logging.
		root := ""
		if proj, err := project.Find(rootCtx, flagProject); err == nil {
			root = proj.Root
		}
		return logging.Init(root, logging.Options{Verbose: flagVerbose})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
		// Clean up the signal handler
		if rootCancel != nil {
			rootCancel()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errRunFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// GetContext returns the root context that is cancelled on SIGINT/SIGTERM.
// This should be used by all subcommands instead of context.Background().
func GetContext() context.Context {
	if rootCtx == nil {
		return context.Background()
	}
	return rootCtx
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "project directory (default: auto-detect from cwd)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "mirror debug logs to stderr")
	rootCmd.PersistentFlags().StringVarP(&flagFormat, "format", "f", "console", "output format: console, markdown or json")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
}

// openProject finds the project, falling back to defaults rooted at the
// working directory.
func openProject(ctx context.Context) (*project.Project, error) {
	return project.FindOrDefault(ctx, flagProject)
}

// newTracker builds a tracker configured from proj. With history set the
// project's run store is opened and attached.
func newTracker(ctx context.Context, proj *project.Project, history bool, extraWorkflows ...string) (*tracker.Tracker, error) {
	cfg := proj.Config
	analyzer := analyze.New(analyze.WithExtractor(extract.New(
		extract.WithContextLines(cfg.Extract.GetContextLines()),
		extract.WithStackWindow(cfg.Extract.GetStackWindow()),
	)))

	names, err := workflow.DiscoverNames(proj.WorkflowsDir())
	if err != nil {
		logging.WarnContext(ctx, "workflow discovery failed", "dir", proj.WorkflowsDir(), "error", err)
	}
	names = append(names, extraWorkflows...)

	opts := []tracker.Option{
		tracker.WithAnalyzer(analyzer),
		tracker.WithWorkflows(names),
		tracker.WithCacheTTL(cfg.Cache.GetTTL()),
	}
	if history {
		store, err := proj.DB(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tracker.WithStore(store, proj.Logs()), tracker.WithRepo(proj.Root))
	}
	return tracker.New(opts...), nil
}

// consoleOutput reports whether --format selects the console renderer.
func consoleOutput() bool {
	f, err := render.ParseFormat(flagFormat)
	return err == nil && f == render.FormatConsole
}

// newRenderer returns the renderer selected by --format, sized to the
// terminal when w is one.
func newRenderer(w io.Writer) (render.Renderer, error) {
	format, err := render.ParseFormat(flagFormat)
	if err != nil {
		return nil, err
	}
	width := render.DefaultWidth
	if f, ok := w.(*os.File); ok && term.IsTerminal(f.Fd()) {
		if cols, _, err := term.GetSize(f.Fd()); err == nil && cols > 0 {
			width = cols
		}
	}
	return render.New(format, width)
}
