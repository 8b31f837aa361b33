package extract

import (
	"strings"
)

// findStackTrace searches the lines within window bytes of off for the
// first stack trace marker and returns the contiguous frame block that
// starts there, with trailing blank lines removed.
func findStackTrace(doc *document, off, window int) string {
	if window <= 0 {
		return ""
	}
	first := doc.lineIndex(max(0, off-window))
	last := doc.lineIndex(min(len(doc.text), off+window))

	start := -1
	for i := first; i <= last && start < 0; i++ {
		l := traceLine(doc.lines[i])
		for _, re := range traceStartPatterns {
			if re.MatchString(l) {
				start = i
				break
			}
		}
	}
	if start < 0 {
		return ""
	}

	block := []string{traceLine(doc.lines[start])}
	for i := start + 1; i < len(doc.lines) && len(block) < maxStackLines; i++ {
		l := traceLine(doc.lines[i])
		if strings.TrimSpace(l) == "" || isFrame(l) {
			block = append(block, l)
			continue
		}
		break
	}

	for len(block) > 0 && strings.TrimSpace(block[len(block)-1]) == "" {
		block = block[:len(block)-1]
	}
	return strings.Join(block, "\n")
}

func traceLine(raw string) string {
	if len(raw) > maxLineLength {
		return ""
	}
	return CleanLine(raw)
}

func isFrame(l string) bool {
	for _, re := range traceFramePatterns {
		if re.MatchString(l) {
			return true
		}
	}
	return false
}
