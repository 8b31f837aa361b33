// Package testutil provides shared test fixtures: an in-memory history
// harness and a builder for act-formatted run logs.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/newhook/runlens/internal/db"
	"github.com/newhook/runlens/internal/project"
	"github.com/newhook/runlens/internal/tracker"
)

// TestHarness is a tracker wired to an in-memory history database and a
// temporary log directory.
type TestHarness struct {
	T       *testing.T
	DB      *db.DB
	Logs    *db.LogStore
	Tracker *tracker.Tracker
	Config  *project.Config
}

// NewTestHarness creates a harness. Extra tracker options are applied
// after the store.
func NewTestHarness(t *testing.T, opts ...tracker.Option) *TestHarness {
	t.Helper()

	testDB, err := db.OpenPath(context.Background(), ":memory:")
	require.NoError(t, err, "failed to open in-memory database")

	logs := db.NewLogStore(t.TempDir())
	config := &project.Config{
		Project: project.ProjectConfig{Name: "test-project"},
	}

	h := &TestHarness{
		T:      t,
		DB:     testDB,
		Logs:   logs,
		Config: config,
	}
	h.Tracker = tracker.New(append([]tracker.Option{
		tracker.WithStore(testDB, logs),
		tracker.WithCacheTTL(config.Cache.GetTTL()),
	}, opts...)...)
	return h
}

// Cleanup releases resources used by the harness.
// Should be called with defer after NewTestHarness.
func (h *TestHarness) Cleanup() {
	if h.DB != nil {
		if err := h.DB.Close(); err != nil {
			h.T.Logf("warning: failed to close database: %v", err)
		}
	}
}

// Ingest records text as a run and fails the test on error.
func (h *TestHarness) Ingest(text string) *tracker.Ingestion {
	h.T.Helper()
	ing, err := h.Tracker.Ingest(context.Background(), text)
	require.NoError(h.T, err, "failed to ingest run")
	return ing
}

// IngestAll records each log in order and returns the ingestions.
func (h *TestHarness) IngestAll(texts ...string) []*tracker.Ingestion {
	h.T.Helper()
	out := make([]*tracker.Ingestion, 0, len(texts))
	for _, text := range texts {
		out = append(out, h.Ingest(text))
	}
	return out
}

// RunCount returns the number of stored runs.
func (h *TestHarness) RunCount() int {
	h.T.Helper()
	runs, err := h.DB.ListRuns(context.Background(), 0)
	require.NoError(h.T, err)
	return len(runs)
}
