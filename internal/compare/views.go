package compare

import (
	"time"

	"github.com/newhook/runlens/internal/result"
)

// KindCount is the number of failures of one kind.
type KindCount struct {
	Kind  result.Kind `json:"kind"`
	Count int         `json:"count"`
}

// KindBreakdown counts the failures of r per kind, in result.Kinds order.
// Kinds with no failures are omitted.
func KindBreakdown(r *result.ExecutionResult) []KindCount {
	counts := make(map[result.Kind]int)
	for _, f := range r.Failures() {
		k := f.Kind
		if !k.Valid() {
			k = result.KindUnknown
		}
		counts[k]++
	}
	var out []KindCount
	for _, k := range result.Kinds {
		if n := counts[k]; n > 0 {
			out = append(out, KindCount{Kind: k, Count: n})
		}
	}
	return out
}

// Breakdowns returns the per-kind counts of both sides of c.
func Breakdowns(c *result.ComparisonResult) (current, previous []KindCount) {
	return KindBreakdown(c.Current), KindBreakdown(c.Previous)
}

// WorkflowStatus describes how a workflow changed between two runs.
type WorkflowStatus string

const (
	StatusNew       WorkflowStatus = "new"
	StatusRemoved   WorkflowStatus = "removed"
	StatusFixed     WorkflowStatus = "fixed"
	StatusBroken    WorkflowStatus = "broken"
	StatusUnchanged WorkflowStatus = "unchanged"
)

// WorkflowChange is the status of one workflow across the two runs.
type WorkflowChange struct {
	Name             string         `json:"name"`
	Status           WorkflowStatus `json:"status"`
	CurrentFailures  int            `json:"current_failures"`
	PreviousFailures int            `json:"previous_failures"`
}

// WorkflowChanges classifies every workflow seen in either run. Current
// workflows come first in their order, then workflows only the previous
// run had. Without a previous run every workflow is new.
func WorkflowChanges(c *result.ComparisonResult) []WorkflowChange {
	var out []WorkflowChange
	seen := make(map[string]struct{})

	if c.Current != nil {
		for i := range c.Current.Workflows {
			w := &c.Current.Workflows[i]
			seen[w.Name] = struct{}{}
			change := WorkflowChange{Name: w.Name, CurrentFailures: workflowFailures(w)}

			prev, ok := c.Previous.Workflow(w.Name)
			switch {
			case !ok:
				change.Status = StatusNew
			case !prev.Success && w.Success:
				change.Status = StatusFixed
			case prev.Success && !w.Success:
				change.Status = StatusBroken
			default:
				change.Status = StatusUnchanged
			}
			if ok {
				change.PreviousFailures = workflowFailures(prev)
			}
			out = append(out, change)
		}
	}

	if c.Previous != nil {
		for i := range c.Previous.Workflows {
			w := &c.Previous.Workflows[i]
			if _, ok := seen[w.Name]; ok {
				continue
			}
			seen[w.Name] = struct{}{}
			out = append(out, WorkflowChange{
				Name:             w.Name,
				Status:           StatusRemoved,
				PreviousFailures: workflowFailures(w),
			})
		}
	}
	return out
}

func workflowFailures(w *result.WorkflowResult) int {
	n := 0
	for _, j := range w.Jobs {
		n += len(j.Failures)
	}
	return n
}

// Direction is the overall trend of a comparison.
type Direction string

const (
	Improved  Direction = "improved"
	Regressed Direction = "regressed"
	Mixed     Direction = "mixed"
	Unchanged Direction = "unchanged"
)

// Trend reports whether failures were only resolved, only introduced,
// both, or neither.
func Trend(c *result.ComparisonResult) Direction {
	added, resolved := len(c.NewFailures) > 0, len(c.ResolvedFailures) > 0
	switch {
	case added && resolved:
		return Mixed
	case added:
		return Regressed
	case resolved:
		return Improved
	default:
		return Unchanged
	}
}

// Summary is a flat, serialisable digest of a comparison.
type Summary struct {
	CurrentSuccess    bool             `json:"current_success"`
	PreviousSuccess   *bool            `json:"previous_success,omitempty"`
	CurrentTimestamp  time.Time        `json:"current_timestamp"`
	PreviousTimestamp *time.Time       `json:"previous_timestamp,omitempty"`
	CurrentFailures   int              `json:"current_failures"`
	PreviousFailures  int              `json:"previous_failures"`
	NewCount          int              `json:"new_count"`
	ResolvedCount     int              `json:"resolved_count"`
	PersistentCount   int              `json:"persistent_count"`
	ImprovementScore  float64          `json:"improvement_score"`
	HasChanges        bool             `json:"has_changes"`
	Trend             Direction        `json:"trend"`
	CurrentKinds      []KindCount      `json:"current_kinds,omitempty"`
	PreviousKinds     []KindCount      `json:"previous_kinds,omitempty"`
	Workflows         []WorkflowChange `json:"workflows,omitempty"`
}

// Summarize builds the Summary of c.
func Summarize(c *result.ComparisonResult) Summary {
	s := Summary{
		CurrentFailures:  c.Current.TotalFailures(),
		PreviousFailures: c.Previous.TotalFailures(),
		NewCount:         len(c.NewFailures),
		ResolvedCount:    len(c.ResolvedFailures),
		PersistentCount:  len(c.PersistentFailures),
		ImprovementScore: c.ImprovementScore,
		HasChanges:       c.HasChanges(),
		Trend:            Trend(c),
		Workflows:        WorkflowChanges(c),
	}
	s.CurrentKinds, s.PreviousKinds = Breakdowns(c)
	if c.Current != nil {
		s.CurrentSuccess = c.Current.Success
		s.CurrentTimestamp = c.Current.Timestamp
	}
	if c.Previous != nil {
		ok := c.Previous.Success
		ts := c.Previous.Timestamp
		s.PreviousSuccess = &ok
		s.PreviousTimestamp = &ts
	}
	return s
}
