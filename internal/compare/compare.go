// Package compare diffs two analyzed runs.
//
// Failures are matched across runs by result.CompositeKey. The comparison
// itself is a plain result.ComparisonResult; the views in this package
// (breakdowns, workflow changes, summaries) are recomputed from it on
// demand.
package compare

import (
	"github.com/newhook/runlens/internal/result"
)

// Compare diffs current against previous. previous may be nil for a run
// with no history. Compare never fails and never modifies its inputs.
func Compare(current, previous *result.ExecutionResult) *result.ComparisonResult {
	c := &result.ComparisonResult{
		Current:  current,
		Previous: previous,
	}

	cur := unique(current.Failures())
	if previous == nil {
		c.NewFailures = cur.failures
		if current != nil && current.Success {
			c.ImprovementScore = 1
		}
		return c
	}

	prev := unique(previous.Failures())
	for _, f := range cur.failures {
		if _, ok := prev.keys[f.CompositeKey()]; ok {
			c.PersistentFailures = append(c.PersistentFailures, f)
		} else {
			c.NewFailures = append(c.NewFailures, f)
		}
	}
	for _, f := range prev.failures {
		if _, ok := cur.keys[f.CompositeKey()]; !ok {
			c.ResolvedFailures = append(c.ResolvedFailures, f)
		}
	}

	c.ImprovementScore = Score(current.TotalFailures(), previous.TotalFailures())
	return c
}

// Score is the improvement of a run with current failures over one with
// previous failures, in [0, 1]. Zero previous failures scores 1 only if
// there are still none.
func Score(current, previous int) float64 {
	if previous == 0 {
		if current == 0 {
			return 1
		}
		return 0
	}
	s := 1 - float64(current)/float64(previous)
	if s < 0 {
		return 0
	}
	return s
}

type keyedFailures struct {
	failures []result.Failure
	keys     map[result.CompositeKey]struct{}
}

// unique keeps the first failure for each composite key, in order.
func unique(failures []result.Failure) keyedFailures {
	out := keyedFailures{keys: make(map[result.CompositeKey]struct{}, len(failures))}
	for _, f := range failures {
		k := f.CompositeKey()
		if _, ok := out.keys[k]; ok {
			continue
		}
		out.keys[k] = struct{}{}
		out.failures = append(out.failures, f)
	}
	return out
}
