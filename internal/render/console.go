package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/newhook/runlens/internal/compare"
	"github.com/newhook/runlens/internal/db"
	"github.com/newhook/runlens/internal/result"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("247"))
	kindStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
)

// Console renders for a terminal.
type Console struct {
	Width int
}

func mark(ok bool) string {
	if ok {
		return passStyle.Render("✓")
	}
	return failStyle.Render("✗")
}

// flush writes b to w with every line truncated to the console width.
func (c *Console) flush(w io.Writer, b *strings.Builder) error {
	width := c.Width
	if width <= 0 {
		width = DefaultWidth
	}
	lines := strings.Split(b.String(), "\n")
	for i, l := range lines {
		lines[i] = truncate.StringWithTail(l, uint(width), "...")
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// Run writes the workflow, job and step tree followed by each job's failures.
func (c *Console) Run(w io.Writer, r *result.ExecutionResult) error {
	var b strings.Builder

	status := passStyle.Render("PASSED")
	if !r.Success {
		status = failStyle.Render("FAILED")
	}
	fmt.Fprintf(&b, "%s  %s\n", status, dimStyle.Render(strings.Join([]string{
		plural(len(r.Workflows), "workflow", "workflows"),
		plural(r.JobCount(), "job", "jobs"),
		plural(r.TotalFailures(), "failure", "failures"),
		seconds(r.TotalDuration),
		r.Timestamp.Format("2006-01-02 15:04:05"),
	}, " · ")))
	if r.LogPath != "" {
		fmt.Fprintf(&b, "%s\n", dimStyle.Render("log: "+r.LogPath))
	}

	for _, wf := range r.Workflows {
		fmt.Fprintf(&b, "\n%s %s  %s\n", mark(wf.Success), headerStyle.Render(wf.Name), dimStyle.Render(seconds(wf.Duration)))
		for _, job := range wf.Jobs {
			fmt.Fprintf(&b, "  %s %s  %s\n", mark(job.Success), job.Name, dimStyle.Render(seconds(job.Duration)))
			for _, s := range job.Steps {
				fmt.Fprintf(&b, "      %s %s  %s\n", mark(s.Success), s.Name, dimStyle.Render(seconds(s.Duration)))
			}
			for _, f := range job.Failures {
				c.failure(&b, f, "      ")
			}
		}
	}

	return c.flush(w, &b)
}

func (c *Console) failure(b *strings.Builder, f result.Failure, indent string) {
	head := kindStyle.Render("[" + string(f.Kind) + "]")
	if loc := f.Location(); loc != "" {
		head += " " + dimStyle.Render(loc)
	}
	b.WriteString(indent + head + "\n")

	width := c.Width - len(indent) - 2
	if width < 20 {
		width = 20
	}
	for _, l := range strings.Split(wordwrap.String(f.Message, width), "\n") {
		b.WriteString(indent + "  " + l + "\n")
	}
}

// Comparison writes the trend, score and the three failure lists.
func (c *Console) Comparison(w io.Writer, cmp *result.ComparisonResult) error {
	var b strings.Builder
	s := compare.Summarize(cmp)

	fmt.Fprintf(&b, "%s  %s  %s\n",
		headerStyle.Render("Comparison"),
		trendStyle(s.Trend).Render(string(s.Trend)),
		dimStyle.Render(fmt.Sprintf("score %.2f", s.ImprovementScore)))
	fmt.Fprintf(&b, "  current   %s %s\n", mark(s.CurrentSuccess), plural(s.CurrentFailures, "failure", "failures"))
	if s.PreviousSuccess != nil {
		fmt.Fprintf(&b, "  previous  %s %s\n", mark(*s.PreviousSuccess), plural(s.PreviousFailures, "failure", "failures"))
	} else {
		fmt.Fprintf(&b, "  previous  %s\n", dimStyle.Render("none"))
	}

	sections := []struct {
		title    string
		failures []result.Failure
	}{
		{"New", cmp.NewFailures},
		{"Resolved", cmp.ResolvedFailures},
		{"Persistent", cmp.PersistentFailures},
	}
	for _, sec := range sections {
		fmt.Fprintf(&b, "\n%s\n", sectionStyle.Render(fmt.Sprintf("%s (%d)", sec.title, len(sec.failures))))
		for _, f := range sec.failures {
			c.failure(&b, f, "  ")
		}
	}

	if len(s.Workflows) > 0 {
		fmt.Fprintf(&b, "\n%s\n", sectionStyle.Render("Workflows"))
		for _, wc := range s.Workflows {
			fmt.Fprintf(&b, "  %-24s %s\n", wc.Name, statusStyle(wc.Status).Render(string(wc.Status)))
		}
	}

	return c.flush(w, &b)
}

// History writes one line per stored run.
func (c *Console) History(w io.Writer, runs []db.RunSummary) error {
	var b strings.Builder
	if len(runs) == 0 {
		b.WriteString(dimStyle.Render("no runs recorded") + "\n")
	}
	for _, r := range runs {
		fmt.Fprintf(&b, "%s %s  %s  %-12s %s  %s\n",
			mark(r.Success),
			db.ShortID(r.ID),
			r.Timestamp.Format("2006-01-02 15:04:05"),
			plural(r.FailureCount, "failure", "failures"),
			dimStyle.Render(seconds(r.TotalDuration)),
			dimStyle.Render(revision(r.Commit, r.Branch)))
	}
	return c.flush(w, &b)
}

func trendStyle(d compare.Direction) lipgloss.Style {
	switch d {
	case compare.Improved:
		return passStyle
	case compare.Regressed, compare.Mixed:
		return failStyle
	default:
		return dimStyle
	}
}

func statusStyle(s compare.WorkflowStatus) lipgloss.Style {
	switch s {
	case compare.StatusFixed, compare.StatusNew:
		return passStyle
	case compare.StatusBroken:
		return failStyle
	default:
		return dimStyle
	}
}
