package analyze

import (
	"strings"
)

// jobSpan is a job located in the log. Lines [first, last] are its slice;
// when ctx is set only lines carrying that context (or none) belong to it.
type jobSpan struct {
	name     string
	ctx      string
	first    int
	last     int
	end      *logLine // job end marker, nil when the job never reported one
	workflow string

	synthetic bool
}

// stepSpan is a step located inside a job's lines.
type stepSpan struct {
	name  string
	lines []logLine
	end   *logLine
}

// findJobs locates job boundaries. Each job runs from its start marker to
// the first matching end marker, or up to the next job start when it never
// reports an end. It returns nil when the log has no job markers.
func findJobs(lines []logLine) []jobSpan {
	var starts []int
	for i := range lines {
		if lines[i].marker == markerJobStart {
			starts = append(starts, i)
		}
	}

	jobs := make([]jobSpan, 0, len(starts))
	for n, i := range starts {
		next := len(lines)
		if n+1 < len(starts) {
			next = starts[n+1]
		}
		key := lines[i].jobKey()

		job := jobSpan{
			name:  lines[i].name,
			ctx:   lines[i].ctx,
			first: i,
			last:  next - 1,
		}
		for j := i + 1; j < len(lines); j++ {
			if lines[j].marker == markerJobStart && lines[j].jobKey() == key {
				break // restarted before it ended
			}
			if lines[j].marker == markerJobEnd && lines[j].jobKey() == key {
				job.last = j
				job.end = &lines[j]
				break
			}
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// jobLines returns the lines that belong to job.
func jobLines(lines []logLine, job jobSpan) []logLine {
	span := lines[job.first : job.last+1]
	if job.ctx == "" {
		return span
	}
	out := make([]logLine, 0, len(span))
	for _, l := range span {
		if l.ctx == "" || l.ctx == job.ctx {
			out = append(out, l)
		}
	}
	return out
}

// findSteps locates step boundaries within a job's lines. A step runs from
// its start marker to the matching end marker, or up to the next step start.
// It returns nil when the job has no step markers.
func findSteps(lines []logLine) []stepSpan {
	var steps []stepSpan
	for i := 0; i < len(lines); i++ {
		if lines[i].marker != markerStepStart {
			continue
		}
		name := lines[i].name
		last := len(lines) - 1
		var end *logLine
		for j := i + 1; j < len(lines); j++ {
			if lines[j].marker == markerStepStart || lines[j].marker == markerJobEnd {
				last = j - 1
				break
			}
			if lines[j].marker == markerStepEnd && lines[j].name == name {
				last = j
				end = &lines[j]
				break
			}
		}
		steps = append(steps, stepSpan{name: name, lines: lines[i : last+1], end: end})
	}
	return steps
}

// stepFailed reports whether the lines show a failure glyph or a step
// result line reporting Failure.
func stepFailed(lines []logLine) bool {
	for _, l := range lines {
		if l.isFailedStepResult() || strings.Contains(l.raw, failureGlyph) {
			return true
		}
	}
	return false
}

// stepOutput joins the informational lines of a step, marker lines dropped.
func stepOutput(lines []logLine) string {
	var out []string
	for _, l := range lines {
		if l.marker != markerNone {
			continue
		}
		out = append(out, l.body)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n ")
}

// joinRaw rebuilds the text of lines as they appear in the log.
func joinRaw(lines []logLine) string {
	raws := make([]string, len(lines))
	for i, l := range lines {
		raws[i] = l.raw
	}
	return strings.Join(raws, "\n")
}
