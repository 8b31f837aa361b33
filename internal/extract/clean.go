package extract

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

var (
	// timestampPattern matches CI log timestamp prefixes.
	// Format: 2026-01-26T14:49:40.7760945Z
	timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z\s*`)

	// contextPattern matches the act "[Workflow/job]" prefix and the pipe
	// separator act puts in front of captured command output.
	// Format: "[CI/build]   | go: downloading ..."
	contextPattern = regexp.MustCompile(`^\[([^\]\n]+)\][ \t]*(?:\| ?)?`)
)

// StripTimestamp removes a leading CI timestamp from line.
// Input:  "2026-01-26T14:49:40.7760945Z --- FAIL: TestName"
// Output: "--- FAIL: TestName"
func StripTimestamp(line string) string {
	return timestampPattern.ReplaceAllString(line, "")
}

// StripANSI removes ANSI escape sequences from s.
func StripANSI(s string) string {
	return ansi.Strip(s)
}

// StripContext removes the act "[Workflow/job] |" prefix from line.
// Input:  "[CI/test]   |   File \"a.py\", line 3"
// Output: "  File \"a.py\", line 3"
func StripContext(line string) string {
	return contextPattern.ReplaceAllString(line, "")
}

// Context returns the "[Workflow/job]" label at the start of line, if any.
func Context(line string) (string, bool) {
	m := contextPattern.FindStringSubmatch(StripTimestamp(StripANSI(line)))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CleanLine strips ANSI codes, the timestamp and the act context prefix
// from a single log line. Indentation after the prefix is kept.
func CleanLine(line string) string {
	line = StripANSI(strings.TrimRight(line, "\r"))
	line = StripTimestamp(line)
	return StripContext(line)
}

// CleanLog applies CleanLine to every line of log.
func CleanLog(log string) string {
	lines := strings.Split(log, "\n")
	for i, line := range lines {
		lines[i] = CleanLine(line)
	}
	return strings.Join(lines, "\n")
}
