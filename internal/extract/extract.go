// Package extract finds failures in raw CI output.
//
// Extraction walks a fixed, ordered table of per-kind regular expressions
// over the whole log. Each match becomes a result.Failure carrying the
// message, an optional file/line location, the surrounding log lines and,
// when one is nearby, a stack trace. The package holds no mutable state;
// an Extractor may be shared between goroutines.
package extract

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/newhook/runlens/internal/result"
)

const (
	// DefaultContextLines is the number of lines kept before and after a match.
	DefaultContextLines = 3
	// DefaultStackWindow is how far, in bytes, to look around a match for a stack trace.
	DefaultStackWindow = 2000

	maxLineLength  = 65536 // lines longer than this are never matched
	maxStackLines  = 200
	maxMessageSize = 4096
)

// Match is a failure together with the byte span it was found at.
type Match struct {
	Failure result.Failure
	Start   int
	End     int
}

// Extractor turns log text into failures.
type Extractor struct {
	contextLines int
	stackWindow  int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithContextLines sets how many lines of context surround each failure.
func WithContextLines(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.contextLines = n
		}
	}
}

// WithStackWindow sets how many bytes around a match are searched for a stack trace.
func WithStackWindow(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.stackWindow = n
		}
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		contextLines: DefaultContextLines,
		stackWindow:  DefaultStackWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = New()

// Extract finds failures in text using the default settings.
func Extract(text string) []result.Failure {
	return defaultExtractor.Extract(text)
}

// Extract finds failures in text, in scan order, without duplicates.
func (e *Extractor) Extract(text string) []result.Failure {
	matches := e.Matches(text)
	if len(matches) == 0 {
		return nil
	}
	failures := make([]result.Failure, len(matches))
	for i, m := range matches {
		failures[i] = m.Failure
	}
	return failures
}

// Matches is Extract with the byte span of every failure in text.
func (e *Extractor) Matches(text string) []Match {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	doc := newDocument(text)
	seen := make(map[result.Key]struct{})
	claimed := make(map[int]struct{})
	var out []Match

	for _, set := range library {
		for _, re := range set.patterns {
			for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
				m, lineIdx, ok := e.build(doc, set.kind, loc)
				if !ok {
					continue
				}
				// Generic errors never repeat a line a more specific kind
				// already reported.
				if _, taken := claimed[lineIdx]; taken && set.kind == result.KindError {
					continue
				}
				key := m.Failure.Key()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				claimed[lineIdx] = struct{}{}
				out = append(out, m)
			}
		}
	}
	return out
}

// build turns one regexp match into a Match. It reports false when the
// match cannot produce a usable failure; a panic while building counts as
// such a match and is contained here.
func (e *Extractor) build(doc *document, kind result.Kind, loc []int) (m Match, lineIdx int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	start, end := loc[0], loc[1]
	msgStart, msgEnd := start, end
	if len(loc) >= 4 && loc[2] >= 0 && loc[3] > loc[2] {
		msgStart, msgEnd = loc[2], loc[3]
	}

	lineIdx = doc.lineIndex(msgStart)
	if len(doc.lines[lineIdx]) > maxLineLength {
		return Match{}, 0, false
	}

	message := strings.TrimSpace(StripANSI(doc.text[msgStart:msgEnd]))
	if message == "" {
		message = strings.TrimSpace(StripANSI(doc.text[start:end]))
	}
	if message == "" {
		return Match{}, 0, false
	}
	message = truncateMessage(message)

	file, lineNum := findLocation(message)
	if file == "" {
		file, lineNum = findLocation(doc.text[start:end])
	}

	before, after := doc.context(lineIdx, e.contextLines)

	f := result.Failure{
		Kind:          kind,
		Message:       message,
		FilePath:      file,
		LineNumber:    lineNum,
		ContextBefore: before,
		ContextAfter:  after,
		StackTrace:    findStackTrace(doc, start, e.stackWindow),
	}
	return Match{Failure: f, Start: start, End: end}, lineIdx, true
}

// truncateMessage cuts message to at most maxMessageSize bytes without
// splitting a rune.
func truncateMessage(message string) string {
	if len(message) <= maxMessageSize {
		return message
	}
	cut := maxMessageSize
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}

// document is log text split into lines with the offset of each line start.
type document struct {
	text   string
	lines  []string
	starts []int
}

func newDocument(text string) *document {
	lines := strings.Split(text, "\n")
	starts := make([]int, len(lines))
	off := 0
	for i, l := range lines {
		starts[i] = off
		off += len(l) + 1
	}
	return &document{text: text, lines: lines, starts: starts}
}

// lineIndex returns the 0-based line containing byte offset off.
func (d *document) lineIndex(off int) int {
	i := sort.Search(len(d.starts), func(i int) bool { return d.starts[i] > off })
	return i - 1
}

// context returns up to n raw lines before and after line idx.
func (d *document) context(idx, n int) (before, after []string) {
	if n == 0 {
		return nil, nil
	}
	lo := max(0, idx-n)
	hi := min(len(d.lines), idx+1+n)
	for _, l := range d.lines[lo:idx] {
		before = append(before, strings.TrimRight(l, "\r"))
	}
	for _, l := range d.lines[idx+1 : hi] {
		after = append(after, strings.TrimRight(l, "\r"))
	}
	return before, after
}
