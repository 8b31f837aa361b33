package extract

import (
	"regexp"

	"github.com/newhook/runlens/internal/result"
)

// linePrefix matches what CI tooling puts in front of a tool's own output:
// ANSI color codes, a timestamp and the act "[Workflow/job] |" context.
const linePrefix = `(?:\x1b\[[0-9;]*m)*(?:\d{4}-\d{2}-\d{2}T[\d:.]+Z[ \t]+)?(?:\[[^\]\n]+\][ \t]*(?:\|[ \t]?)?)?[ \t]*`

// line anchors body at the start of a log line, after any CI prefix.
func line(body string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^` + linePrefix + body)
}

// kindPatterns is the pattern set for one failure kind. Each pattern has at
// most one capture group, which holds the failure message.
type kindPatterns struct {
	kind     result.Kind
	patterns []*regexp.Regexp
}

// library is scanned top to bottom. Specific kinds come first so the
// generic error patterns never claim a line one of them already matched.
var library = []kindPatterns{
	{
		kind: result.KindAssertion,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`AssertionError(?::[ \t]*([^\n]*))?`),
			regexp.MustCompile(`(?i)\bassert(?:ion)?[ \t]+failed:?[ \t]*([^\n]*)`),
			// testify: "Error:      	Not equal:"
			line(`Error:[ \t]+((?:Not equal|Should (?:not )?be|Expected|Received|Error message not equal|An error is expected)[^\n]*)`),
			line(`(Expected(?: value)?:[ \t]+[^\n]+)`),
			regexp.MustCompile(`(?i)\b(expected [^\n]+? (?:to (?:equal|be|have|include|contain)|but (?:got|was|received)) [^\n]+)`),
		},
	},
	{
		kind: result.KindTimeout,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(test timed out after [^\n]+)`),
			regexp.MustCompile(`(?i)\b((?:operation|request|job|step|connection|context|command)[ \t]+timed[ \t]+out[^\n]*)`),
			regexp.MustCompile(`(?i)\b((?:timeout|time limit)(?: of [^\n]+?)? exceeded[^\n]*)`),
			regexp.MustCompile(`(?i)\b(context deadline exceeded[^\n]*)`),
			regexp.MustCompile(`(?i)\b(timed out (?:after|waiting)[^\n]*)`),
			regexp.MustCompile(`(?i)\b(exceeded the maximum execution time[^\n]*)`),
		},
	},
	{
		kind: result.KindBuildFailure,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(build failed[^\n]*)`),
			regexp.MustCompile(`(?i)\b(compilation (?:failed|terminated)[^\n]*)`),
			regexp.MustCompile(`(?i)\berror: (could not compile [^\n]+)`),
			regexp.MustCompile(`error\[E\d{4}\]:[ \t]*([^\n]+)`),
			line(`(make(?:\[\d+\])?: \*\*\* [^\n]+)`),
			line(`(\S+\.go:\d+:\d+: (?:undefined|cannot use|too many|not enough|missing|invalid operation|imported and not used|declared and not used)[^\n]*)`),
			line(`(\S+\.(?:c|cc|cpp|cxx|h|hpp):\d+:\d+: (?:fatal )?error: [^\n]+)`),
			line(`(\S+\.tsx?:\d+:\d+ - error TS\d+: [^\n]+)`),
		},
	},
	{
		kind: result.KindSyntax,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`SyntaxError:[ \t]*([^\n]+)`),
			regexp.MustCompile(`(?i)\b(syntax error[^\n]*)`),
			regexp.MustCompile(`(?i)\b(unexpected token[^\n]*)`),
			regexp.MustCompile(`(?i)\b(parse error[^\n]*)`),
		},
	},
	{
		kind: result.KindTestFailure,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`---[ \t]*FAIL:[ \t]*(\S+)`),
			regexp.MustCompile(`===[ \t]*FAIL:[ \t]*(\S+[ \t]+\S+)[ \t]*\(`),
			line(`FAIL[ \t]+(\S+)[ \t]+[\d.]+s[ \t]*$`),
			line(`FAILED[ \t]+([^\n]+)`),
			line(`[✕×][ \t]+([^\n]+)`),
			line(`FAIL[ \t]+(\S+\.(?:test|spec)\.[jt]sx?)`),
			regexp.MustCompile(`(?m)^=+ ([^\n]*\b\d+ failed[^\n]*?) =+[ \t]*$`),
			regexp.MustCompile(`(?i)\b(\d+ (?:tests?|specs?|examples?) failed[^\n]*)`),
		},
	},
	{
		kind: result.KindError,
		patterns: []*regexp.Regexp{
			line(`(?:Error|ERROR|error|Fatal|FATAL|fatal)(?:\[[^\]\n]*\])?:[ \t]+([^\n]+)`),
			regexp.MustCompile(`##\[error\]([^\n]+)`),
			regexp.MustCompile(`::error(?:[ \t]+[^:\n]*)?::([^\n]+)`),
			line(`panic:[ \t]+([^\n]+)`),
			line(`(?:[\w$]+\.)*\w*(?:Error|Exception):[ \t]+([^\n]+)`),
		},
	},
}

// Location patterns, tried in order against a failure message.
var (
	// pathLinePattern matches "path/to/file.ext:line[:col]".
	pathLinePattern = regexp.MustCompile(`((?:[A-Za-z]:)?[\w./\\@~+-]*\w\.[A-Za-z]\w*):(\d+)(?::\d+)?`)

	// annotationPattern matches "file=path,key=value,..." workflow command
	// parameters; annotationLinePattern finds line= among the trailing keys.
	annotationPattern     = regexp.MustCompile(`\bfile=([^,\s:]+)((?:,\w+=[^,\s:]*)*)`)
	annotationLinePattern = regexp.MustCompile(`(?:^|,)line=(\d+)`)

	// pytestLocationPattern matches "path/to/test.py:42: in test_name".
	pytestLocationPattern = regexp.MustCompile(`([\w./\\-]+\.\w+):(\d+): in `)
)

// Stack trace markers and frame lines. Both are tested against lines with
// the CI prefix already stripped.
var (
	traceStartPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^Traceback \(most recent call last\):`),
		regexp.MustCompile(`^[ \t]+at [^\s]`),
		regexp.MustCompile(`^[ \t]+File "[^"]+", line \d+`),
		regexp.MustCompile(`^goroutine \d+ \[[^\]]+\]:`),
	}

	traceFramePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^[ \t]+\S`),
		regexp.MustCompile(`^goroutine \d+ \[`),
		regexp.MustCompile(`^created by \S`),
		regexp.MustCompile(`^[\w./*()\[\]-]+\(.*\)$`),
	}
)
