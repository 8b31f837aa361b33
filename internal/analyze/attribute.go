package analyze

import (
	"sort"

	"github.com/newhook/runlens/internal/result"
)

// attributeFailures assigns every failure found in the whole log to one job.
//
// A job claims a whole-log match when the match lies inside the job's slice
// and extracting the job's own text finds a failure with the same
// (message, file, line). Each match is claimed once, by the first job to
// qualify. Matches no job claims go to the job named by the match line's
// act context, else to the latest job started before the match, else to
// the first job. Failures straddling a job boundary can land in the wrong
// job; reconciliation is by exact key only.
func (a *Analyzer) attributeFailures(text string, lines []logLine, jobs []jobSpan) [][]result.Failure {
	out := make([][]result.Failure, len(jobs))
	matches := a.extractor.Matches(text)
	if len(matches) == 0 {
		return out
	}

	owner := make([]int, len(matches))
	for i := range owner {
		owner[i] = -1
	}

	for ji, job := range jobs {
		lo, hi := jobBounds(lines, job)
		own := make(map[result.Key]struct{})
		for _, f := range a.extractor.Extract(joinRaw(jobLines(lines, job))) {
			own[f.Key()] = struct{}{}
		}
		for mi, m := range matches {
			if owner[mi] >= 0 || m.Start < lo || m.Start >= hi {
				continue
			}
			if _, ok := own[m.Failure.Key()]; ok {
				owner[mi] = ji
			}
		}
	}

	starts := make([]int, len(lines))
	for i, l := range lines {
		starts[i] = l.start
	}
	for mi, m := range matches {
		if owner[mi] < 0 {
			li := sort.Search(len(starts), func(i int) bool { return starts[i] > m.Start }) - 1
			owner[mi] = orphanOwner(lines[li], li, jobs)
		}
		out[owner[mi]] = append(out[owner[mi]], m.Failure)
	}
	return out
}

// jobBounds returns the byte range [lo, hi) covered by job's slice.
func jobBounds(lines []logLine, job jobSpan) (lo, hi int) {
	last := lines[job.last]
	return lines[job.first].start, last.start + len(last.raw) + 1
}

func orphanOwner(l logLine, lineIdx int, jobs []jobSpan) int {
	if l.ctx != "" {
		for ji, job := range jobs {
			if job.ctx == l.ctx {
				return ji
			}
		}
	}
	owner := 0
	for ji, job := range jobs {
		if job.first <= lineIdx {
			owner = ji
		}
	}
	return owner
}
