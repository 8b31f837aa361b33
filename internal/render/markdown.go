package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/newhook/runlens/internal/compare"
	"github.com/newhook/runlens/internal/db"
	"github.com/newhook/runlens/internal/result"
)

// Markdown renders GitHub-flavored Markdown suitable for PR comments and
// job summaries.
type Markdown struct{}

func icon(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

// cell escapes a value for use inside a table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func (m *Markdown) Run(w io.Writer, r *result.ExecutionResult) error {
	var b strings.Builder

	verdict := "passed"
	if !r.Success {
		verdict = "failed"
	}
	fmt.Fprintf(&b, "## %s CI run %s\n\n", icon(r.Success), verdict)
	fmt.Fprintf(&b, "%s, %s, %s in %s (%s)\n\n",
		plural(len(r.Workflows), "workflow", "workflows"),
		plural(r.JobCount(), "job", "jobs"),
		plural(r.TotalFailures(), "failure", "failures"),
		seconds(r.TotalDuration),
		r.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))

	b.WriteString("| Workflow | Job | Status | Duration | Failures |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, wf := range r.Workflows {
		for _, job := range wf.Jobs {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %d |\n",
				cell(wf.Name), cell(job.Name), icon(job.Success), seconds(job.Duration), len(job.Failures))
		}
	}

	if r.TotalFailures() > 0 {
		b.WriteString("\n### Failures\n")
		for _, wf := range r.Workflows {
			for _, job := range wf.Jobs {
				if len(job.Failures) == 0 {
					continue
				}
				fmt.Fprintf(&b, "\n#### %s / %s\n\n", wf.Name, job.Name)
				for _, f := range job.Failures {
					writeFailureItem(&b, f)
				}
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeFailureItem(b *strings.Builder, f result.Failure) {
	fmt.Fprintf(b, "- **%s** %s", f.Kind, strings.TrimSpace(f.Message))
	if loc := f.Location(); loc != "" {
		fmt.Fprintf(b, " (`%s`)", loc)
	}
	b.WriteString("\n")
	if f.StackTrace != "" {
		b.WriteString("  <details><summary>stack trace</summary>\n\n  ```\n")
		for _, l := range strings.Split(f.StackTrace, "\n") {
			b.WriteString("  " + l + "\n")
		}
		b.WriteString("  ```\n  </details>\n")
	}
}

func (m *Markdown) Comparison(w io.Writer, c *result.ComparisonResult) error {
	var b strings.Builder
	s := compare.Summarize(c)

	fmt.Fprintf(&b, "## Comparison: %s\n\n", s.Trend)
	b.WriteString("| | Current | Previous |\n|---|---|---|\n")
	prevStatus, prevFailures := "n/a", "n/a"
	if s.PreviousSuccess != nil {
		prevStatus = icon(*s.PreviousSuccess)
		prevFailures = fmt.Sprint(s.PreviousFailures)
	}
	fmt.Fprintf(&b, "| Status | %s | %s |\n", icon(s.CurrentSuccess), prevStatus)
	fmt.Fprintf(&b, "| Failures | %d | %s |\n\n", s.CurrentFailures, prevFailures)
	fmt.Fprintf(&b, "Improvement score: **%.2f**\n", s.ImprovementScore)

	sections := []struct {
		title    string
		failures []result.Failure
	}{
		{"New failures", c.NewFailures},
		{"Resolved failures", c.ResolvedFailures},
		{"Persistent failures", c.PersistentFailures},
	}
	for _, sec := range sections {
		if len(sec.failures) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s (%d)\n\n", sec.title, len(sec.failures))
		for _, f := range sec.failures {
			writeFailureItem(&b, f)
		}
	}

	var changed []compare.WorkflowChange
	for _, wc := range s.Workflows {
		if wc.Status != compare.StatusUnchanged {
			changed = append(changed, wc)
		}
	}
	if len(changed) > 0 {
		b.WriteString("\n### Workflows\n\n| Workflow | Status | Current | Previous |\n|---|---|---|---|\n")
		for _, wc := range changed {
			fmt.Fprintf(&b, "| %s | %s | %d | %d |\n", cell(wc.Name), wc.Status, wc.CurrentFailures, wc.PreviousFailures)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (m *Markdown) History(w io.Writer, runs []db.RunSummary) error {
	var b strings.Builder
	b.WriteString("| Run | Timestamp | Status | Jobs | Failures | Duration | Revision |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %d | %d | %s | %s |\n",
			db.ShortID(r.ID), r.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			icon(r.Success), r.JobCount, r.FailureCount, seconds(r.TotalDuration),
			cell(revision(r.Commit, r.Branch)))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
