package analyze

import (
	"regexp"
	"strings"

	"github.com/newhook/runlens/internal/extract"
)

// Boundary markers, matched against a line with its act "[Workflow/job]"
// context already removed.
var (
	// [CI/build] 🚀  Start image=node:16-buster-slim
	jobStartActPattern = regexp.MustCompile(`^[ \t]*🚀[ \t]+Start image`)
	// Starting job: build
	jobStartPlainPattern = regexp.MustCompile(`^[ \t]*Starting job:?[ \t]+(.+?)[ \t]*$`)
	// [CI/build] 🏁  Job succeeded
	jobEndActPattern = regexp.MustCompile(`^[ \t]*🏁[ \t]+Job (succeeded|failed)`)
	// Finished job: build took 12 s
	jobEndPlainPattern = regexp.MustCompile(`^[ \t]*Finished job:?[ \t]+(.+?)[ \t]*$`)

	// [CI/build] ⭐ Run Main go test ./...
	stepStartPattern = regexp.MustCompile(`^[ \t]*⭐[ \t]+Run[ \t]+(.+?)[ \t]*$`)
	// [CI/build]   ✅  Success - Main go test ./... [1.2s]
	stepEndPattern = regexp.MustCompile(`^[ \t]*(?:✅|❌)[ \t]+(Success|Failure)[ \t]+-[ \t]+(.+?)(?:[ \t]+\[([^\]]+)\])?[ \t]*$`)

	// Workflow: CI
	workflowMarkerPattern = regexp.MustCompile(`^[ \t]*(?:Workflow|Running workflow):?[ \t]+(.+?)[ \t]*$`)

	failureGlyph = "❌"

	// took 12.5 s
	tookPattern = regexp.MustCompile(`(?i)\btook[ \t]+(\d+(?:\.\d+)?)[ \t]*s(?:ec(?:ond)?s?)?\b`)
	// tookSuffixPattern strips a trailing "took N s" from a marker name.
	tookSuffixPattern = regexp.MustCompile(`(?i)[ \t]+took[ \t]+\d+(?:\.\d+)?[ \t]*s(?:ec(?:ond)?s?)?\b.*$`)

	isoTimestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
)

type markerKind int

const (
	markerNone markerKind = iota
	markerJobStart
	markerJobEnd
	markerStepStart
	markerStepEnd
	markerWorkflow
)

// logLine is one physical line of the log with its parsed prefix.
type logLine struct {
	raw    string
	ctx    string // act "[Workflow/job]" label, "" when absent
	body   string // line without ANSI, timestamp and context prefix
	start  int    // byte offset of raw in the document
	marker markerKind
	name   string // job, step or workflow name carried by a marker
	failed bool   // step/job end marker reported failure
	dur    string // act duration bracket on a step end marker
}

func parseLines(text string) []logLine {
	raws := strings.Split(text, "\n")
	lines := make([]logLine, len(raws))
	off := 0
	for i, raw := range raws {
		l := logLine{raw: raw, start: off}
		off += len(raw) + 1

		ctx, _ := extract.Context(raw)
		l.ctx = ctx
		l.body = extract.CleanLine(raw)
		classify(&l)
		lines[i] = l
	}
	return lines
}

func classify(l *logLine) {
	body := l.body
	switch {
	case l.ctx != "" && jobStartActPattern.MatchString(body):
		l.marker = markerJobStart
		l.name = jobName(l.ctx)
	case jobStartPlainPattern.MatchString(body):
		l.marker = markerJobStart
		l.name = trimTook(jobStartPlainPattern.FindStringSubmatch(body)[1])
	case l.ctx != "" && jobEndActPattern.MatchString(body):
		m := jobEndActPattern.FindStringSubmatch(body)
		l.marker = markerJobEnd
		l.name = jobName(l.ctx)
		l.failed = m[1] == "failed"
	case jobEndPlainPattern.MatchString(body):
		l.marker = markerJobEnd
		l.name = trimTook(jobEndPlainPattern.FindStringSubmatch(body)[1])
	case stepStartPattern.MatchString(body):
		l.marker = markerStepStart
		l.name = stepStartPattern.FindStringSubmatch(body)[1]
	case stepEndPattern.MatchString(body):
		m := stepEndPattern.FindStringSubmatch(body)
		l.marker = markerStepEnd
		l.failed = m[1] == "Failure"
		l.name = m[2]
		l.dur = m[3]
	case workflowMarkerPattern.MatchString(body):
		l.marker = markerWorkflow
		l.name = trimTook(workflowMarkerPattern.FindStringSubmatch(body)[1])
	}
}

// jobKey identifies the job a start or end marker belongs to.
func (l *logLine) jobKey() string {
	if l.ctx != "" {
		return "ctx:" + l.ctx
	}
	return "job:" + l.name
}

// jobName is the job part of an act context label: "CI/build" -> "build".
func jobName(ctx string) string {
	if i := strings.Index(ctx, "/"); i >= 0 && i < len(ctx)-1 {
		return ctx[i+1:]
	}
	return ctx
}

// workflowName is the workflow part of an act context label: "CI/build" -> "CI".
func workflowName(ctx string) string {
	if i := strings.Index(ctx, "/"); i > 0 {
		return ctx[:i]
	}
	return ""
}

func trimTook(name string) string {
	return strings.TrimSpace(tookSuffixPattern.ReplaceAllString(name, ""))
}

// isFailedStepResult reports whether the line is a step result line reporting Failure.
func (l *logLine) isFailedStepResult() bool {
	return l.marker == markerStepEnd && l.failed
}
