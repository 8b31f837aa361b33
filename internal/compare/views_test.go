package compare

import (
	"encoding/json"
	"testing"

	"github.com/newhook/runlens/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindBreakdown(t *testing.T) {
	r := run("CI",
		[]result.Failure{assertX, timeoutY, {Kind: result.KindError, Message: "a"}},
		[]result.Failure{{Kind: result.KindError, Message: "b"}, {Kind: "bogus", Message: "c"}},
	)
	assert.Equal(t, []KindCount{
		{Kind: result.KindError, Count: 2},
		{Kind: result.KindAssertion, Count: 1},
		{Kind: result.KindTimeout, Count: 1},
		{Kind: result.KindUnknown, Count: 1},
	}, KindBreakdown(r))

	assert.Nil(t, KindBreakdown(nil))
	assert.Nil(t, KindBreakdown(run("CI", nil)))
}

func multi(workflows map[string]bool, order ...string) *result.ExecutionResult {
	r := &result.ExecutionResult{Success: true}
	for _, name := range order {
		ok := workflows[name]
		j := result.JobResult{Name: "job", Success: ok}
		if !ok {
			j.Failures = []result.Failure{{Kind: result.KindError, Message: name + " broke"}}
		}
		r.Workflows = append(r.Workflows, result.WorkflowResult{Name: name, Success: ok, Jobs: []result.JobResult{j}})
		r.Success = r.Success && ok
	}
	return r
}

func TestWorkflowChanges(t *testing.T) {
	current := multi(map[string]bool{"build": true, "test": false, "lint": true, "docs": true}, "build", "test", "lint", "docs")
	previous := multi(map[string]bool{"build": false, "test": true, "lint": true, "release": true}, "build", "test", "lint", "release")

	changes := WorkflowChanges(Compare(current, previous))
	require.Len(t, changes, 5)
	assert.Equal(t, WorkflowChange{Name: "build", Status: StatusFixed, PreviousFailures: 1}, changes[0])
	assert.Equal(t, WorkflowChange{Name: "test", Status: StatusBroken, CurrentFailures: 1}, changes[1])
	assert.Equal(t, WorkflowChange{Name: "lint", Status: StatusUnchanged}, changes[2])
	assert.Equal(t, WorkflowChange{Name: "docs", Status: StatusNew}, changes[3])
	assert.Equal(t, WorkflowChange{Name: "release", Status: StatusRemoved}, changes[4])
}

func TestWorkflowChanges_NoPrevious(t *testing.T) {
	changes := WorkflowChanges(Compare(run("CI", nil), nil))
	require.Len(t, changes, 1)
	assert.Equal(t, StatusNew, changes[0].Status)
}

func TestTrend(t *testing.T) {
	f := []result.Failure{assertX}
	assert.Equal(t, Unchanged, Trend(&result.ComparisonResult{}))
	assert.Equal(t, Regressed, Trend(&result.ComparisonResult{NewFailures: f}))
	assert.Equal(t, Improved, Trend(&result.ComparisonResult{ResolvedFailures: f}))
	assert.Equal(t, Mixed, Trend(&result.ComparisonResult{NewFailures: f, ResolvedFailures: f}))
}

func TestSummarize(t *testing.T) {
	current := run("CI", []result.Failure{assertX})
	previous := run("CI", []result.Failure{assertX, timeoutY})
	c := Compare(current, previous)

	s := Summarize(c)
	assert.False(t, s.CurrentSuccess)
	require.NotNil(t, s.PreviousSuccess)
	assert.False(t, *s.PreviousSuccess)
	require.NotNil(t, s.PreviousTimestamp)
	assert.Equal(t, 1, s.CurrentFailures)
	assert.Equal(t, 2, s.PreviousFailures)
	assert.Equal(t, 0, s.NewCount)
	assert.Equal(t, 1, s.ResolvedCount)
	assert.Equal(t, 1, s.PersistentCount)
	assert.InDelta(t, 0.5, s.ImprovementScore, 1e-9)
	assert.True(t, s.HasChanges)
	assert.Equal(t, Improved, s.Trend)
	assert.Equal(t, []KindCount{{Kind: result.KindAssertion, Count: 1}}, s.CurrentKinds)
	require.Len(t, s.Workflows, 1)
	assert.Equal(t, StatusUnchanged, s.Workflows[0].Status)

	// summarizing leaves the comparison untouched
	assert.Len(t, c.ResolvedFailures, 1)
	assert.Len(t, c.PersistentFailures, 1)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"improvement_score":0.5`)
	assert.Contains(t, string(data), `"trend":"improved"`)
}

func TestSummarize_FirstRun(t *testing.T) {
	s := Summarize(Compare(run("CI", nil), nil))
	assert.True(t, s.CurrentSuccess)
	assert.Nil(t, s.PreviousSuccess)
	assert.Nil(t, s.PreviousTimestamp)
	assert.Equal(t, 1.0, s.ImprovementScore)
	assert.False(t, s.HasChanges)
	assert.Equal(t, Unchanged, s.Trend)
}
