// Package result defines the structured form of a CI run: workflows, jobs,
// steps and the failures found in them, plus the comparison of two runs.
//
// Values are built once by the analyzer and comparator and are not mutated
// afterwards. Everything derived (failure counts, failed jobs) is computed
// by walking the tree on each call.
package result

import (
	"strconv"
	"strings"
	"time"
)

// Kind classifies a failure.
type Kind string

const (
	KindError        Kind = "error"
	KindAssertion    Kind = "assertion"
	KindTimeout      Kind = "timeout"
	KindBuildFailure Kind = "build_failure"
	KindTestFailure  Kind = "test_failure"
	KindSyntax       Kind = "syntax"
	KindUnknown      Kind = "unknown"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{
	KindError,
	KindAssertion,
	KindTimeout,
	KindBuildFailure,
	KindTestFailure,
	KindSyntax,
	KindUnknown,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind converts s to a Kind. Unrecognised values map to KindUnknown.
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k.Valid() {
		return k
	}
	return KindUnknown
}

// Failure is one detected problem in a log.
type Failure struct {
	Kind          Kind     `json:"kind"`
	Message       string   `json:"message"`
	FilePath      string   `json:"file_path,omitempty"`
	LineNumber    int      `json:"line_number,omitempty"`
	ContextBefore []string `json:"context_before,omitempty"`
	ContextAfter  []string `json:"context_after,omitempty"`
	StackTrace    string   `json:"stack_trace,omitempty"`
}

// Key identifies a failure for deduplication within one log.
type Key struct {
	Message    string
	FilePath   string
	LineNumber int
}

// Key returns the deduplication identity of f.
func (f Failure) Key() Key {
	return Key{Message: f.Message, FilePath: f.FilePath, LineNumber: f.LineNumber}
}

// CompositeKey identifies "the same failure" across two runs.
type CompositeKey struct {
	Kind       Kind
	Message    string
	FilePath   string
	LineNumber int
}

// CompositeKey returns the cross-run identity of f.
func (f Failure) CompositeKey() CompositeKey {
	return CompositeKey{
		Kind:       f.Kind,
		Message:    strings.TrimSpace(f.Message),
		FilePath:   f.FilePath,
		LineNumber: f.LineNumber,
	}
}

// Location renders the file position as "path:line", "path" or "".
func (f Failure) Location() string {
	if f.FilePath == "" {
		if f.LineNumber > 0 {
			return "line " + strconv.Itoa(f.LineNumber)
		}
		return ""
	}
	if f.LineNumber > 0 {
		return f.FilePath + ":" + strconv.Itoa(f.LineNumber)
	}
	return f.FilePath
}

// StepResult is one executed step.
type StepResult struct {
	Name     string  `json:"name"`
	Success  bool    `json:"success"`
	Duration float64 `json:"duration"`
	Output   string  `json:"output,omitempty"`
}

// JobResult is one job and the failures attributed to it.
type JobResult struct {
	Name     string       `json:"name"`
	Success  bool         `json:"success"`
	Failures []Failure    `json:"failures"`
	Steps    []StepResult `json:"steps"`
	Duration float64      `json:"duration"`
}

// Succeeded reports whether the job has no failures and every step passed.
func (j *JobResult) Succeeded() bool {
	if len(j.Failures) > 0 {
		return false
	}
	for _, s := range j.Steps {
		if !s.Success {
			return false
		}
	}
	return true
}

// WorkflowResult is one workflow and its jobs.
type WorkflowResult struct {
	Name     string      `json:"name"`
	Success  bool        `json:"success"`
	Jobs     []JobResult `json:"jobs"`
	Duration float64     `json:"duration"`
}

// Succeeded reports whether every job in the workflow succeeded.
func (w *WorkflowResult) Succeeded() bool {
	for i := range w.Jobs {
		if !w.Jobs[i].Success {
			return false
		}
	}
	return true
}

// ExecutionResult is the root of one run.
type ExecutionResult struct {
	Success       bool             `json:"success"`
	Workflows     []WorkflowResult `json:"workflows"`
	TotalDuration float64          `json:"total_duration"`
	Timestamp     time.Time        `json:"timestamp"`
	LogPath       string           `json:"log_path,omitempty"`
}

// JobRef names a job within its workflow.
type JobRef struct {
	Workflow string `json:"workflow"`
	Job      string `json:"job"`
}

// Failures returns every failure in tree order.
func (r *ExecutionResult) Failures() []Failure {
	if r == nil {
		return nil
	}
	var out []Failure
	for _, w := range r.Workflows {
		for _, j := range w.Jobs {
			out = append(out, j.Failures...)
		}
	}
	return out
}

// TotalFailures counts the failures across the tree.
func (r *ExecutionResult) TotalFailures() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, w := range r.Workflows {
		for _, j := range w.Jobs {
			n += len(j.Failures)
		}
	}
	return n
}

// FailedWorkflows returns the workflows that did not succeed.
func (r *ExecutionResult) FailedWorkflows() []WorkflowResult {
	if r == nil {
		return nil
	}
	var out []WorkflowResult
	for _, w := range r.Workflows {
		if !w.Success {
			out = append(out, w)
		}
	}
	return out
}

// FailedJobs returns a reference to every job that did not succeed.
func (r *ExecutionResult) FailedJobs() []JobRef {
	if r == nil {
		return nil
	}
	var out []JobRef
	for _, w := range r.Workflows {
		for _, j := range w.Jobs {
			if !j.Success {
				out = append(out, JobRef{Workflow: w.Name, Job: j.Name})
			}
		}
	}
	return out
}

// JobCount returns the number of jobs across all workflows.
func (r *ExecutionResult) JobCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, w := range r.Workflows {
		n += len(w.Jobs)
	}
	return n
}

// JobSuccessRate is the fraction of jobs that succeeded, 1 when there are none.
func (r *ExecutionResult) JobSuccessRate() float64 {
	total := r.JobCount()
	if total == 0 {
		return 1
	}
	return float64(total-len(r.FailedJobs())) / float64(total)
}

// Workflow returns the workflow with the given name.
func (r *ExecutionResult) Workflow(name string) (*WorkflowResult, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.Workflows {
		if r.Workflows[i].Name == name {
			return &r.Workflows[i], true
		}
	}
	return nil, false
}

// ComparisonResult is the diff between a run and the one before it.
// Previous is nil for a first-ever run.
type ComparisonResult struct {
	Current            *ExecutionResult `json:"current"`
	Previous           *ExecutionResult `json:"previous,omitempty"`
	NewFailures        []Failure        `json:"new_failures"`
	ResolvedFailures   []Failure        `json:"resolved_failures"`
	PersistentFailures []Failure        `json:"persistent_failures"`
	ImprovementScore   float64          `json:"improvement_score"`
}

// HasChanges reports whether any failure appeared or went away.
func (c *ComparisonResult) HasChanges() bool {
	return len(c.NewFailures) > 0 || len(c.ResolvedFailures) > 0
}
