package testutil

import (
	"fmt"
	"strconv"
	"strings"
)

// ActLog builds logs in the format printed by act, one "[workflow/job]"
// prefixed line at a time.
type ActLog struct {
	workflow string
	lines    []string
}

// NewActLog starts a log for workflow.
func NewActLog(workflow string) *ActLog {
	return &ActLog{workflow: workflow}
}

func (l *ActLog) prefix(job string) string {
	return fmt.Sprintf("[%s/%s]", l.workflow, job)
}

// StartJob writes the job start marker.
func (l *ActLog) StartJob(job string) *ActLog {
	l.lines = append(l.lines, l.prefix(job)+" 🚀  Start image=node:20")
	return l
}

// Step writes a step start marker, its output and its result marker.
func (l *ActLog) Step(job, name string, ok bool, seconds float64, output ...string) *ActLog {
	p := l.prefix(job)
	l.lines = append(l.lines, p+" ⭐ Run "+name)
	for _, o := range output {
		l.lines = append(l.lines, p+"   | "+o)
	}
	status := "✅  Success"
	if !ok {
		status = "❌  Failure"
	}
	l.lines = append(l.lines, fmt.Sprintf("%s   %s - %s [%ss]", p, status, name, strconv.FormatFloat(seconds, 'f', -1, 64)))
	return l
}

// EndJob writes the job end marker.
func (l *ActLog) EndJob(job string, ok bool) *ActLog {
	status := "succeeded"
	if !ok {
		status = "failed"
	}
	l.lines = append(l.lines, l.prefix(job)+" 🏁  Job "+status)
	return l
}

// Raw appends an unprefixed line.
func (l *ActLog) Raw(line string) *ActLog {
	l.lines = append(l.lines, line)
	return l
}

// String returns the log text.
func (l *ActLog) String() string {
	return strings.Join(l.lines, "\n")
}
