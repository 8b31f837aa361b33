package compare

import (
	"testing"
	"time"

	"github.com/newhook/runlens/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run builds a single-workflow run with one job per failure slice.
func run(workflow string, jobs ...[]result.Failure) *result.ExecutionResult {
	w := result.WorkflowResult{Name: workflow}
	for i, failures := range jobs {
		j := result.JobResult{
			Name:     "job" + string(rune('a'+i)),
			Failures: failures,
			Steps:    []result.StepResult{{Name: "step", Success: true}},
		}
		j.Success = j.Succeeded()
		w.Jobs = append(w.Jobs, j)
	}
	w.Success = w.Succeeded()
	return &result.ExecutionResult{
		Success:   w.Success,
		Workflows: []result.WorkflowResult{w},
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

var (
	assertX  = result.Failure{Kind: result.KindAssertion, Message: "x", FilePath: "f.py", LineNumber: 10}
	timeoutY = result.Failure{Kind: result.KindTimeout, Message: "y"}
)

func TestCompare_PersistentAndResolved(t *testing.T) {
	current := run("CI", []result.Failure{assertX})
	previous := run("CI", []result.Failure{assertX, timeoutY})

	c := Compare(current, previous)

	assert.Empty(t, c.NewFailures)
	require.Len(t, c.ResolvedFailures, 1)
	assert.Equal(t, "y", c.ResolvedFailures[0].Message)
	require.Len(t, c.PersistentFailures, 1)
	assert.Equal(t, "x", c.PersistentFailures[0].Message)
	assert.InDelta(t, 0.5, c.ImprovementScore, 1e-9)
	assert.True(t, c.HasChanges())
	assert.Same(t, current, c.Current)
	assert.Same(t, previous, c.Previous)
}

func TestCompare_FirstRun(t *testing.T) {
	c := Compare(run("CI", nil), nil)
	assert.Empty(t, c.NewFailures)
	assert.Empty(t, c.ResolvedFailures)
	assert.Empty(t, c.PersistentFailures)
	assert.Equal(t, 1.0, c.ImprovementScore)
	assert.Nil(t, c.Previous)
}

func TestCompare_FirstRunWithFailures(t *testing.T) {
	c := Compare(run("CI", []result.Failure{assertX, assertX, timeoutY}), nil)
	assert.Len(t, c.NewFailures, 2)
	assert.Equal(t, 0.0, c.ImprovementScore)
}

func TestCompare_KeepsSideSpecificObjects(t *testing.T) {
	cur := assertX
	cur.Message = "  x  "
	cur.StackTrace = "current trace"
	prev := assertX
	prev.StackTrace = "previous trace"
	gone := timeoutY
	gone.ContextBefore = []string{"only in previous"}

	c := Compare(run("CI", []result.Failure{cur}), run("CI", []result.Failure{prev, gone}))

	require.Len(t, c.PersistentFailures, 1)
	assert.Equal(t, "current trace", c.PersistentFailures[0].StackTrace)
	require.Len(t, c.ResolvedFailures, 1)
	assert.Equal(t, []string{"only in previous"}, c.ResolvedFailures[0].ContextBefore)
}

func TestCompare_KindIsPartOfIdentity(t *testing.T) {
	asError := assertX
	asError.Kind = result.KindError
	c := Compare(run("CI", []result.Failure{asError}), run("CI", []result.Failure{assertX}))
	assert.Len(t, c.NewFailures, 1)
	assert.Len(t, c.ResolvedFailures, 1)
	assert.Empty(t, c.PersistentFailures)
}

func TestCompare_PartitionInvariant(t *testing.T) {
	a := result.Failure{Kind: result.KindError, Message: "a"}
	b := result.Failure{Kind: result.KindError, Message: "b"}
	d := result.Failure{Kind: result.KindSyntax, Message: "d", FilePath: "x.js", LineNumber: 3}
	e := result.Failure{Kind: result.KindBuildFailure, Message: "e"}

	current := run("CI", []result.Failure{a, b}, []result.Failure{d, a})
	previous := run("CI", []result.Failure{b, e}, []result.Failure{e})
	c := Compare(current, previous)

	keys := func(fs []result.Failure) map[result.CompositeKey]bool {
		m := make(map[result.CompositeKey]bool)
		for _, f := range fs {
			m[f.CompositeKey()] = true
		}
		return m
	}
	curKeys, prevKeys := keys(current.Failures()), keys(previous.Failures())
	newKeys, persistentKeys, resolvedKeys := keys(c.NewFailures), keys(c.PersistentFailures), keys(c.ResolvedFailures)

	// new and persistent partition the current keys
	assert.Len(t, newKeys, len(c.NewFailures))
	assert.Len(t, persistentKeys, len(c.PersistentFailures))
	for k := range curKeys {
		assert.NotEqual(t, newKeys[k], persistentKeys[k], "key %v", k)
	}
	assert.Equal(t, len(curKeys), len(newKeys)+len(persistentKeys))

	// resolved and persistent partition the previous keys
	for k := range prevKeys {
		assert.NotEqual(t, resolvedKeys[k], persistentKeys[k], "key %v", k)
	}
	assert.Equal(t, len(prevKeys), len(resolvedKeys)+len(persistentKeys))

	assert.Equal(t, []result.Failure{a, d}, c.NewFailures)
	assert.Equal(t, []result.Failure{b}, c.PersistentFailures)
	assert.Equal(t, []result.Failure{e}, c.ResolvedFailures)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		previous int
		want     float64
	}{
		{"clean to clean", 0, 0, 1},
		{"clean to broken", 3, 0, 0},
		{"all fixed", 0, 4, 1},
		{"half fixed", 2, 4, 0.5},
		{"no change", 4, 4, 0},
		{"worse", 9, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.current, tt.previous)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestCompare_DoesNotMutateInputs(t *testing.T) {
	current := run("CI", []result.Failure{assertX})
	previous := run("CI", []result.Failure{timeoutY})

	Compare(current, previous)
	assert.Equal(t, []result.Failure{assertX}, current.Failures())
	assert.Equal(t, []result.Failure{timeoutY}, previous.Failures())
}
