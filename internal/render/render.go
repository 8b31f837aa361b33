// Package render formats runs, comparisons and run history for humans
// (console, Markdown) and machines (JSON).
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/newhook/runlens/internal/db"
	"github.com/newhook/runlens/internal/result"
)

// Format selects a renderer.
type Format string

const (
	FormatConsole  Format = "console"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Formats lists the supported formats.
var Formats = []Format{FormatConsole, FormatMarkdown, FormatJSON}

// ParseFormat converts a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatConsole, FormatMarkdown, FormatJSON:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "":
		return FormatConsole, nil
	default:
		return "", fmt.Errorf("unknown format %q (want console, markdown or json)", s)
	}
}

// Renderer writes runs, comparisons and history listings.
type Renderer interface {
	Run(w io.Writer, r *result.ExecutionResult) error
	Comparison(w io.Writer, c *result.ComparisonResult) error
	History(w io.Writer, runs []db.RunSummary) error
}

// DefaultWidth is the console width used when the terminal size is unknown.
const DefaultWidth = 100

// New returns the renderer for format. width only affects the console.
func New(format Format, width int) (Renderer, error) {
	switch format {
	case FormatConsole, "":
		if width <= 0 {
			width = DefaultWidth
		}
		return &Console{Width: width}, nil
	case FormatMarkdown:
		return &Markdown{}, nil
	case FormatJSON:
		return &JSON{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// seconds formats a duration in seconds for display.
func seconds(d float64) string {
	switch {
	case d <= 0:
		return "-"
	case d < 60:
		return fmt.Sprintf("%.1fs", d)
	default:
		m := int(d) / 60
		return fmt.Sprintf("%dm%02.0fs", m, d-float64(m*60))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// revision formats a commit and branch as "branch@abc1234".
func revision(commit, branch string) string {
	if len(commit) > 7 {
		commit = commit[:7]
	}
	switch {
	case commit == "" && branch == "":
		return ""
	case branch == "":
		return commit
	case commit == "":
		return branch
	default:
		return branch + "@" + commit
	}
}
