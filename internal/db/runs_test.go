package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/newhook/runlens/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenPath(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(failures ...result.Failure) *result.ExecutionResult {
	job := result.JobResult{
		Name:     "test",
		Failures: failures,
		Steps:    []result.StepResult{{Name: "Main go test", Success: len(failures) == 0, Duration: 1.5}},
		Duration: 1.5,
	}
	job.Success = job.Succeeded()
	return &result.ExecutionResult{
		Success: job.Success,
		Workflows: []result.WorkflowResult{
			{Name: "CI", Success: job.Success, Jobs: []result.JobResult{job}, Duration: 1.5},
		},
		TotalDuration: 1.5,
		Timestamp:     time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC),
		LogPath:       "/tmp/run.log",
	}
}

func TestSaveAndGetRun(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	r := sampleRun(result.Failure{Kind: result.KindAssertion, Message: "x", FilePath: "f.py", LineNumber: 10})
	id, err := db.SaveRun(ctx, r)
	require.NoError(t, err)
	require.Len(t, id, 36)

	got, err := db.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, r.Workflows, got.Result.Workflows)
	assert.True(t, r.Timestamp.Equal(got.Result.Timestamp))
	assert.Equal(t, "/tmp/run.log", got.Result.LogPath)

	byPrefix, err := db.GetRun(ctx, ShortID(id))
	require.NoError(t, err)
	assert.Equal(t, id, byPrefix.ID)
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = db.GetRun(context.Background(), "")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestGetRun_LikeWildcardsAreLiteral(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	_, err := db.SaveRun(ctx, sampleRun())
	require.NoError(t, err)

	_, err = db.GetRun(ctx, "%")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestLatestAndPreviousRun(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	_, err := db.LatestRun(ctx)
	require.ErrorIs(t, err, ErrRunNotFound)

	first, err := db.SaveRun(ctx, sampleRun(result.Failure{Kind: result.KindError, Message: "a"}))
	require.NoError(t, err)
	second, err := db.SaveRun(ctx, sampleRun())
	require.NoError(t, err)

	latest, err := db.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, latest.ID)

	prev, err := db.PreviousRun(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, first, prev.ID)
	assert.Equal(t, 1, prev.Result.TotalFailures())

	_, err = db.PreviousRun(ctx, first)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := db.SaveRun(ctx, sampleRun(result.Failure{Kind: result.KindError, Message: strings.Repeat("e", i+1)}))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)
	assert.False(t, all[0].Success)
	assert.Equal(t, 1, all[0].WorkflowCount)
	assert.Equal(t, 1, all[0].JobCount)
	assert.Equal(t, 1, all[0].FailureCount)
	assert.InDelta(t, 1.5, all[0].TotalDuration, 1e-9)
	assert.True(t, time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC).Equal(all[0].Timestamp))

	two, err := db.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestDeleteAndPruneRuns(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := db.SaveRun(ctx, sampleRun(result.Failure{Kind: result.KindTimeout, Message: "slow"}))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, db.DeleteRun(ctx, ids[3]))
	assert.ErrorIs(t, db.DeleteRun(ctx, ids[3]), ErrRunNotFound)

	pruned, err := db.PruneRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pruned, 2)
	assert.Equal(t, ids[1], pruned[0].ID)
	assert.Equal(t, ids[0], pruned[1].ID)

	left, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, ids[2], left[0].ID)

	var orphans int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_failures WHERE run_id != ?`, ids[2]).Scan(&orphans))
	assert.Zero(t, orphans)

	pruned, err = db.PruneRuns(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, pruned)
}

func TestFailureCounts(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	id, err := db.SaveRun(ctx, sampleRun(
		result.Failure{Kind: result.KindError, Message: "a"},
		result.Failure{Kind: result.KindError, Message: "b"},
		result.Failure{Kind: result.KindSyntax, Message: "c"},
	))
	require.NoError(t, err)

	counts, err := db.FailureCounts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[result.Kind]int{result.KindError: 2, result.KindSyntax: 1}, counts)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123abcd", ShortID("0123abcd-ef45-6789"))
	assert.Equal(t, "abc", ShortID("abc"))
}

func TestSaveRun_WithRevision(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	plain, err := db.SaveRun(ctx, sampleRun())
	require.NoError(t, err)
	id, err := db.SaveRun(ctx, sampleRun(), WithRevision("0123456789abcdef", "main"))
	require.NoError(t, err)

	got, err := db.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", got.Commit)
	assert.Equal(t, "main", got.Branch)

	got, err = db.GetRun(ctx, plain)
	require.NoError(t, err)
	assert.Empty(t, got.Commit)
	assert.Empty(t, got.Branch)

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "main", runs[0].Branch)
	assert.Equal(t, "0123456789abcdef", runs[0].Commit)
	assert.Empty(t, runs[1].Branch)
}
