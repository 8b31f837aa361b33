package analyze

import (
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses an ISO-8601-like timestamp as found in CI logs.
// A space between date and time is accepted; no zone means UTC.
func parseTimestamp(s string) (time.Time, bool) {
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// firstTimestamp returns the first parseable timestamp in lines.
func firstTimestamp(lines []logLine) (time.Time, bool) {
	for _, l := range lines {
		for _, m := range isoTimestampPattern.FindAllString(l.raw, -1) {
			if t, ok := parseTimestamp(m); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// lastTimestamp returns the last parseable timestamp in lines.
func lastTimestamp(lines []logLine) (time.Time, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		found := isoTimestampPattern.FindAllString(lines[i].raw, -1)
		for j := len(found) - 1; j >= 0; j-- {
			if t, ok := parseTimestamp(found[j]); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// explicitTook returns the seconds of the first "took N s" token in lines.
func explicitTook(lines []logLine) (float64, bool) {
	for _, l := range lines {
		if d, ok := tookSeconds(l.body); ok {
			return d, true
		}
	}
	return 0, false
}

func tookSeconds(s string) (float64, bool) {
	m := tookPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	d, err := strconv.ParseFloat(m[1], 64)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

// bracketSeconds parses act's step duration bracket, e.g. "1.2s" or "2m3.5s".
func bracketSeconds(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, false
	}
	return d.Seconds(), true
}

// sliceDuration works out how long a slice of the log took: an explicit
// "took N s" first, then the act duration bracket on its end marker, then
// the span between its first and last timestamps, else 0.
func sliceDuration(lines []logLine, end *logLine) float64 {
	if d, ok := explicitTook(lines); ok {
		return d
	}
	if end != nil {
		if d, ok := bracketSeconds(end.dur); ok {
			return d
		}
	}
	first, ok := firstTimestamp(lines)
	if !ok {
		return 0
	}
	last, _ := lastTimestamp(lines)
	if d := last.Sub(first).Seconds(); d > 0 {
		return d
	}
	return 0
}
