package extract

import (
	"strconv"
)

// findLocation looks for a file position in s. The tried forms, in order,
// are "path:line[:col]", "file=path,line=N" and pytest's "path:line: in".
// A line that does not parse as a positive number is dropped and the path
// is kept.
func findLocation(s string) (file string, line int) {
	if m := pathLinePattern.FindStringSubmatch(s); m != nil {
		return m[1], parseLine(m[2])
	}
	if m := annotationPattern.FindStringSubmatch(s); m != nil {
		file = m[1]
		if lm := annotationLinePattern.FindStringSubmatch(m[2]); lm != nil {
			line = parseLine(lm[1])
		}
		return file, line
	}
	if m := pytestLocationPattern.FindStringSubmatch(s); m != nil {
		return m[1], parseLine(m[2])
	}
	return "", 0
}

func parseLine(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
