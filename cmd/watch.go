package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/newhook/runlens/internal/analyze"
	"github.com/newhook/runlens/internal/db"
	"github.com/newhook/runlens/internal/logging"
	"github.com/newhook/runlens/internal/project"
	"github.com/newhook/runlens/internal/render"
	"github.com/newhook/runlens/internal/tracker"
	"github.com/newhook/runlens/internal/watch"
)

var (
	flagWatchPattern  string
	flagWatchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest CI logs as they are written",
	Long: `Watch a directory (default: the project root) for log files. Each file that
matches the watch pattern is ingested into the run history once it has stopped
changing, and its comparison with the previous run is printed.

Only one watcher runs per project.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchPattern, "pattern", "", "glob for watched files, relative to dir (default: watch.pattern)")
	watchCmd.Flags().DurationVar(&flagWatchDebounce, "debounce", 0, "quiet period before a log is ingested (default: watch.debounce_ms)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer proj.Close()

	dir := proj.Root
	if len(args) == 1 {
		dir = args[0]
	}

	configDir := proj.Path(project.ConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", configDir, err)
	}
	lock, err := watch.AcquireLock(filepath.Join(configDir, "watch.lock"))
	if err != nil {
		return err
	}
	defer lock.Release()

	t, err := newTracker(ctx, proj, true)
	if err != nil {
		return err
	}

	cfg := watch.DefaultConfig(dir)
	cfg.Pattern = proj.Config.Watch.GetPattern()
	cfg.DebounceDur = proj.Config.Watch.GetDebounce()
	if flagWatchPattern != "" {
		cfg.Pattern = flagWatchPattern
	}
	if flagWatchDebounce > 0 {
		cfg.DebounceDur = flagWatchDebounce
	}
	// Never ingest our own copies of logs.
	cfg.Ignore = []string{configDir}

	w, err := watch.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	sub := w.Broker().Subscribe(ctx)
	if err := w.Start(); err != nil {
		w.Stop()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	out := cmd.OutOrStdout()
	r, err := newRenderer(out)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching %s for %s (Ctrl-C to stop)\n", w.Dir(), cfg.Pattern)
	logging.InfoContext(ctx, "watch started", "dir", w.Dir(), "pattern", cfg.Pattern)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nWatch stopped.")
			return nil

		case event, ok := <-sub:
			if !ok {
				logging.Debug("watcher subscription closed")
				return nil
			}
			switch event.Payload.Type {
			case watch.LogReady:
				ingestWatched(ctx, out, r, t, event.Payload.Path)
			case watch.WatcherError:
				logging.WarnContext(ctx, "watcher error", "error", event.Payload.Err)
			}
		}
	}
}

// ingestWatched ingests one log. Failures are reported and logged but do
// not stop the watch.
func ingestWatched(ctx context.Context, out io.Writer, r render.Renderer, t *tracker.Tracker, path string) {
	text, err := readLog(nil, path)
	if err != nil {
		logging.WarnContext(ctx, "failed to read watched log", "path", path, "error", err)
		return
	}
	ing, err := t.Ingest(ctx, text)
	if errors.Is(err, analyze.ErrEmptyInput) {
		logging.DebugContext(ctx, "skipping empty log", "path", path)
		return
	}
	if err != nil {
		fmt.Fprintf(out, "[%s] %s: %v\n", time.Now().Format("15:04:05"), path, err)
		logging.Error("failed to ingest log", "path", path, "error", err)
		return
	}

	fmt.Fprintf(out, "\n[%s] %s -> run %s\n", time.Now().Format("15:04:05"), path, db.ShortID(ing.ID))
	if err := r.Comparison(out, ing.Comparison); err != nil {
		logging.WarnContext(ctx, "failed to render comparison", "error", err)
	}
}
