// Package analyze rebuilds the workflow → job → step structure of a CI run
// from its flat log text and classifies pass/fail at every level.
//
// Structure comes from act-style boundary markers. When markers are
// missing the analyzer falls back to synthetic containers: one "default"
// job for the whole log, one step for a whole job. Failure evidence comes
// from the extract package.
package analyze

import (
	"errors"
	"strings"
	"time"

	"github.com/newhook/runlens/internal/extract"
	"github.com/newhook/runlens/internal/result"
)

// DefaultName names the synthetic workflow and job.
const DefaultName = "default"

// ErrEmptyInput is returned when the log is empty or only whitespace.
var ErrEmptyInput = errors.New("empty log: nothing to analyze")

// Analyzer turns log text into an ExecutionResult.
type Analyzer struct {
	extractor *extract.Extractor
	now       func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithExtractor sets the extractor used for failure evidence.
func WithExtractor(e *extract.Extractor) Option {
	return func(a *Analyzer) {
		if e != nil {
			a.extractor = e
		}
	}
}

// WithClock sets the clock used when the log carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		extractor: extract.New(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze analyzes text with a default Analyzer.
func Analyze(text string, knownWorkflows ...string) (*result.ExecutionResult, error) {
	return New().Analyze(text, knownWorkflows...)
}

// Analyze reconstructs the run in text. knownWorkflows are workflow display
// names used to split jobs between workflows; without them every job lands
// in a single "default" workflow. The only error is ErrEmptyInput.
func (a *Analyzer) Analyze(text string, knownWorkflows ...string) (*result.ExecutionResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	lines := parseLines(text)

	jobs := findJobs(lines)
	if len(jobs) == 0 {
		jobs = []jobSpan{{name: DefaultName, first: 0, last: len(lines) - 1, synthetic: true}}
	}
	assignWorkflows(lines, jobs, knownWorkflows)

	attributed := a.attributeFailures(text, lines, jobs)

	run := &result.ExecutionResult{}
	index := make(map[string]int)
	for i, job := range jobs {
		jr := buildJob(lines, job, attributed[i])
		wi, ok := index[job.workflow]
		if !ok {
			wi = len(run.Workflows)
			index[job.workflow] = wi
			run.Workflows = append(run.Workflows, result.WorkflowResult{Name: job.workflow})
		}
		run.Workflows[wi].Jobs = append(run.Workflows[wi].Jobs, jr)
	}

	totals := workflowTotals(lines)
	run.Success = true
	for i := range run.Workflows {
		w := &run.Workflows[i]
		w.Success = w.Succeeded()
		if d, ok := totals[w.Name]; ok {
			w.Duration = d
		} else {
			for _, j := range w.Jobs {
				w.Duration += j.Duration
			}
		}
		run.Success = run.Success && w.Success
		run.TotalDuration += w.Duration
	}

	if ts, ok := firstTimestamp(lines); ok {
		run.Timestamp = ts
	} else {
		run.Timestamp = a.now()
	}
	return run, nil
}

// buildJob assembles the JobResult for one job span.
func buildJob(lines []logLine, job jobSpan, failures []result.Failure) result.JobResult {
	own := jobLines(lines, job)

	var steps []result.StepResult
	spans := findSteps(own)
	if len(spans) == 0 {
		spans = []stepSpan{{name: job.name, lines: own}}
	}
	for _, s := range spans {
		steps = append(steps, result.StepResult{
			Name:     s.name,
			Success:  !stepFailed(s.lines),
			Duration: sliceDuration(s.lines, s.end),
			Output:   stepOutput(s.lines),
		})
	}

	jr := result.JobResult{
		Name:     job.name,
		Failures: failures,
		Steps:    steps,
	}
	var explicit bool
	if job.end != nil {
		jr.Duration, explicit = tookSeconds(job.end.body)
	}
	if !explicit {
		for _, s := range steps {
			jr.Duration += s.Duration
		}
	}
	jr.Success = jr.Succeeded()
	return jr
}

// assignWorkflows sets the workflow of every job. With known names a job
// goes to the workflow named in its act context, else to the latest
// workflow marker before it, else to the default workflow.
func assignWorkflows(lines []logLine, jobs []jobSpan, known []string) {
	knownSet := make(map[string]struct{}, len(known))
	for _, k := range known {
		if k = strings.TrimSpace(k); k != "" {
			knownSet[k] = struct{}{}
		}
	}

	for i := range jobs {
		jobs[i].workflow = DefaultName
	}
	if len(knownSet) == 0 {
		return
	}

	var markers []int
	for i, l := range lines {
		if l.marker == markerWorkflow {
			if _, ok := knownSet[l.name]; ok {
				markers = append(markers, i)
			}
		}
	}

	for i := range jobs {
		job := &jobs[i]
		if wf := workflowName(job.ctx); wf != "" {
			if _, ok := knownSet[wf]; ok {
				job.workflow = wf
				continue
			}
		}
		if job.synthetic {
			// A synthetic job covers the whole log; the first marker names it.
			if len(markers) > 0 {
				job.workflow = lines[markers[0]].name
			}
			continue
		}
		for n := len(markers) - 1; n >= 0; n-- {
			if markers[n] <= job.first {
				job.workflow = lines[markers[n]].name
				break
			}
		}
	}
}

// workflowTotals returns explicit "took N s" totals found on workflow marker lines.
func workflowTotals(lines []logLine) map[string]float64 {
	totals := make(map[string]float64)
	for _, l := range lines {
		if l.marker != markerWorkflow {
			continue
		}
		if d, ok := tookSeconds(l.body); ok {
			totals[l.name] = d
		}
	}
	return totals
}
