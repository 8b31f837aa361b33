// Package tracker ties the analyzer, comparator and history store
// together: analyze a log, persist it, and diff it against the run before.
package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/newhook/runlens/internal/analyze"
	"github.com/newhook/runlens/internal/compare"
	"github.com/newhook/runlens/internal/db"
	"github.com/newhook/runlens/internal/git"
	"github.com/newhook/runlens/internal/logging"
	"github.com/newhook/runlens/internal/result"
	"github.com/newhook/runlens/internal/signal"
)

var (
	// ErrNoPrevious is returned by Diff when the run has nothing to compare against.
	ErrNoPrevious = errors.New("no previous run to compare against")
	// ErrNoStore is returned by operations that need history when none is configured.
	ErrNoStore = errors.New("no history store configured")
)

// Tracker analyzes logs and records them in the run history.
type Tracker struct {
	analyzer *analyze.Analyzer
	store    *db.DB
	logs     *db.LogStore
	cache    *cache.Cache
	hints    []string
	workers  int
	repo     string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithAnalyzer sets the analyzer.
func WithAnalyzer(a *analyze.Analyzer) Option {
	return func(t *Tracker) { t.analyzer = a }
}

// WithStore enables history: runs go to store, raw logs to logs.
func WithStore(store *db.DB, logs *db.LogStore) Option {
	return func(t *Tracker) {
		t.store = store
		t.logs = logs
	}
}

// WithWorkflows sets the known workflow names passed to the analyzer.
func WithWorkflows(names []string) Option {
	return func(t *Tracker) { t.hints = names }
}

// WithRepo records the git revision of dir with every ingested run.
func WithRepo(dir string) Option {
	return func(t *Tracker) { t.repo = dir }
}

// WithCacheTTL sets how long analysis results are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(t *Tracker) { t.cache = cache.New(ttl, 2*ttl) }
}

// WithWorkers bounds how many logs AnalyzeFiles analyzes at once.
func WithWorkers(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.workers = n
		}
	}
}

// New creates a Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		analyzer: analyze.New(),
		cache:    cache.New(5*time.Minute, 10*time.Minute),
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ingestion is the outcome of ingesting one log.
type Ingestion struct {
	ID         string
	Result     *result.ExecutionResult
	PreviousID string
	Comparison *result.ComparisonResult
	Revision   git.Revision
}

// Analyze analyzes text. Results are cached by content, so analyzing the
// same log twice returns an equal result without rescanning it. Each call
// returns its own copy of the top-level result.
func (t *Tracker) Analyze(ctx context.Context, text string) (*result.ExecutionResult, error) {
	key := t.cacheKey(text)
	if v, ok := t.cache.Get(key); ok {
		logging.DebugContext(ctx, "analysis cache hit", "key", key[:12])
		r := *v.(*result.ExecutionResult)
		return &r, nil
	}

	type outcome struct {
		r   *result.ExecutionResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := t.analyzer.Analyze(text, t.hints...)
		done <- outcome{r, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		t.cache.SetDefault(key, o.r)
		r := *o.r
		return &r, nil
	}
}

// AnalyzeFile reads and analyzes one log file.
func (t *Tracker) AnalyzeFile(ctx context.Context, path string) (*result.ExecutionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	r, err := t.Analyze(ctx, string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.LogPath = path
	return r, nil
}

// AnalyzeFiles analyzes logs in parallel. Results are in the order of paths;
// the first error cancels the rest.
func (t *Tracker) AnalyzeFiles(ctx context.Context, paths []string) ([]*result.ExecutionResult, error) {
	out := make([]*result.ExecutionResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for i, path := range paths {
		g.Go(func() error {
			r, err := t.AnalyzeFile(ctx, path)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DiffFiles compares two log files without touching history.
func (t *Tracker) DiffFiles(ctx context.Context, currentPath, previousPath string) (*result.ComparisonResult, error) {
	runs, err := t.AnalyzeFiles(ctx, []string{currentPath, previousPath})
	if err != nil {
		return nil, err
	}
	return compare.Compare(runs[0], runs[1]), nil
}

// Ingest analyzes text, stores the log and the run, and compares the run
// with the one recorded before it.
func (t *Tracker) Ingest(ctx context.Context, text string) (*Ingestion, error) {
	if t.store == nil {
		return nil, ErrNoStore
	}
	r, err := t.Analyze(ctx, text)
	if err != nil {
		return nil, err
	}

	var saveOpts []db.SaveOption
	var rev git.Revision
	if t.repo != "" {
		rev, err = git.Detect(ctx, t.repo)
		if err != nil {
			logging.DebugContext(ctx, "no git revision for run", "dir", t.repo, "error", err)
			rev = git.Revision{}
		} else {
			saveOpts = append(saveOpts, db.WithRevision(rev.Commit, rev.Branch))
		}
	}

	var id string
	err = signal.Critical(func() error {
		if t.logs != nil {
			path, err := t.logs.Write(r.Timestamp, text)
			if err != nil {
				return err
			}
			r.LogPath = path
		}
		id, err = t.store.SaveRun(ctx, r, saveOpts...)
		if err != nil && r.LogPath != "" {
			// No run refers to the log, so prune would never find it.
			if rmErr := t.logs.Remove(r.LogPath); rmErr != nil {
				logging.WarnContext(ctx, "failed to remove unsaved log", "path", r.LogPath, "error", rmErr)
			}
			r.LogPath = ""
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	ing := &Ingestion{ID: id, Result: r, Revision: rev}
	prev, err := t.store.PreviousRun(ctx, id)
	switch {
	case errors.Is(err, db.ErrRunNotFound):
		ing.Comparison = compare.Compare(r, nil)
	case err != nil:
		return nil, err
	default:
		ing.PreviousID = prev.ID
		ing.Comparison = compare.Compare(r, prev.Result)
	}

	logging.InfoContext(ctx, "run ingested",
		"run_id", id,
		"commit", rev.Short(),
		"success", r.Success,
		"failures", r.TotalFailures(),
		"new", len(ing.Comparison.NewFailures),
		"resolved", len(ing.Comparison.ResolvedFailures))
	return ing, nil
}

// Diff compares two stored runs. An empty currentID means the latest run;
// an empty previousID means the run recorded just before current.
func (t *Tracker) Diff(ctx context.Context, currentID, previousID string) (*result.ComparisonResult, error) {
	if t.store == nil {
		return nil, ErrNoStore
	}

	var (
		cur *db.Run
		err error
	)
	if currentID == "" {
		cur, err = t.store.LatestRun(ctx)
	} else {
		cur, err = t.store.GetRun(ctx, currentID)
	}
	if err != nil {
		return nil, err
	}

	var prev *db.Run
	if previousID == "" {
		prev, err = t.store.PreviousRun(ctx, cur.ID)
		if errors.Is(err, db.ErrRunNotFound) {
			return nil, fmt.Errorf("%w: run %s is the first recorded", ErrNoPrevious, db.ShortID(cur.ID))
		}
	} else {
		prev, err = t.store.GetRun(ctx, previousID)
	}
	if err != nil {
		return nil, err
	}
	return compare.Compare(cur.Result, prev.Result), nil
}

// Prune deletes all but the newest keep runs along with their logs.
func (t *Tracker) Prune(ctx context.Context, keep int) ([]db.RunSummary, error) {
	if t.store == nil {
		return nil, ErrNoStore
	}
	removed, err := t.store.PruneRuns(ctx, keep)
	if err != nil {
		return nil, err
	}
	if t.logs != nil {
		for _, r := range removed {
			if err := t.logs.Remove(r.LogPath); err != nil {
				logging.WarnContext(ctx, "failed to remove log", "path", r.LogPath, "error", err)
			}
		}
	}
	return removed, nil
}

func (t *Tracker) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(t.hints, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}
