package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/newhook/runlens/internal/result"
)

var (
	// ErrRunNotFound is returned when no run matches an id.
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousID is returned when an id prefix matches more than one run.
	ErrAmbiguousID = errors.New("ambiguous run id")
)

// Run is a stored run.
type Run struct {
	ID        string
	CreatedAt time.Time
	Commit    string
	Branch    string
	Result    *result.ExecutionResult
}

// RunSummary is the indexed columns of a stored run, without the result tree.
type RunSummary struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Timestamp     time.Time `json:"timestamp"`
	Success       bool      `json:"success"`
	TotalDuration float64   `json:"total_duration"`
	WorkflowCount int       `json:"workflow_count"`
	JobCount      int       `json:"job_count"`
	FailureCount  int       `json:"failure_count"`
	LogPath       string    `json:"log_path,omitempty"`
	Commit        string    `json:"commit,omitempty"`
	Branch        string    `json:"branch,omitempty"`
}

// SaveOption sets optional columns on a saved run.
type SaveOption func(*saveOptions)

type saveOptions struct {
	commit string
	branch string
}

// WithRevision records the source revision the run was made against.
func WithRevision(commit, branch string) SaveOption {
	return func(o *saveOptions) {
		o.commit = commit
		o.branch = branch
	}
}

// ShortID is the first eight characters of id.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SaveRun stores r and its failures and returns the new run id.
func (db *DB) SaveRun(ctx context.Context, r *result.ExecutionResult, opts ...SaveOption) (string, error) {
	if r == nil {
		return "", errors.New("nil result")
	}
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	id := uuid.NewString()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, run_timestamp, success, total_duration,
			workflow_count, job_count, failure_count, log_path, git_commit, git_branch, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, formatTime(time.Now()), formatTime(r.Timestamp), r.Success, r.TotalDuration,
		len(r.Workflows), r.JobCount(), r.TotalFailures(), r.LogPath, o.commit, o.branch, string(data))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	pos := 0
	for _, w := range r.Workflows {
		for _, j := range w.Jobs {
			for _, f := range j.Failures {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO run_failures (run_id, position, workflow, job, kind, message, file_path, line_number)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				`, id, pos, w.Name, j.Name, string(f.Kind), f.Message, f.FilePath, f.LineNumber)
				if err != nil {
					return "", fmt.Errorf("failed to insert failure: %w", err)
				}
				pos++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// GetRun loads a run by id or by a unique id prefix.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRunNotFound
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, git_commit, git_branch, result_json FROM runs
		WHERE id = ? OR id LIKE ? ESCAPE '\'
		ORDER BY (id = ?) DESC, seq
		LIMIT 2
	`, id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case runs[0].ID == id, len(runs) == 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
}

// LatestRun returns the most recently saved run.
func (db *DB) LatestRun(ctx context.Context) (*Run, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, created_at, git_commit, git_branch, result_json FROM runs ORDER BY seq DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return firstRun(rows)
}

// PreviousRun returns the run saved immediately before the run with id.
func (db *DB) PreviousRun(ctx context.Context, id string) (*Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, git_commit, git_branch, result_json FROM runs
		WHERE seq < (SELECT seq FROM runs WHERE id = ?)
		ORDER BY seq DESC LIMIT 1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query previous run: %w", err)
	}
	return firstRun(rows)
}

// ListRuns returns up to limit runs, newest first. limit <= 0 lists all.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, run_timestamp, success, total_duration,
			workflow_count, job_count, failure_count, log_path, git_commit, git_branch
		FROM runs ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var created, ts string
		if err := rows.Scan(&s.ID, &created, &ts, &s.Success, &s.TotalDuration,
			&s.WorkflowCount, &s.JobCount, &s.FailureCount, &s.LogPath, &s.Commit, &s.Branch); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.CreatedAt = parseTime(created)
		s.Timestamp = parseTime(ts)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its failures.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteRun(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// PruneRuns deletes all but the newest keep runs and returns what it deleted.
func (db *DB) PruneRuns(ctx context.Context, keep int) ([]RunSummary, error) {
	if keep < 0 {
		keep = 0
	}
	all, err := db.ListRuns(ctx, 0)
	if err != nil {
		return nil, err
	}
	if len(all) <= keep {
		return nil, nil
	}
	stale := all[keep:]

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	for _, s := range stale {
		if err := deleteRun(ctx, tx, s.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit prune: %w", err)
	}
	return stale, nil
}

// FailureCounts returns the number of failures of each kind in a run.
func (db *DB) FailureCounts(ctx context.Context, id string) (map[result.Kind]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM run_failures WHERE run_id = ? GROUP BY kind
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count failures: %w", err)
	}
	defer rows.Close()

	counts := make(map[result.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan failure count: %w", err)
		}
		counts[result.ParseKind(kind)] += n
	}
	return counts, rows.Err()
}

func deleteRun(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_failures WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete failures of %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func firstRun(rows *sql.Rows) (*Run, error) {
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return runs[0], nil
}

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		var (
			r       Run
			created string
			data    string
		)
		if err := rows.Scan(&r.ID, &created, &r.Commit, &r.Branch, &data); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.CreatedAt = parseTime(created)
		r.Result = &result.ExecutionResult{}
		if err := json.Unmarshal([]byte(data), r.Result); err != nil {
			return nil, fmt.Errorf("failed to decode run %s: %w", r.ID, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
