package render

import (
	"encoding/json"
	"io"

	"github.com/newhook/runlens/internal/compare"
	"github.com/newhook/runlens/internal/db"
	"github.com/newhook/runlens/internal/result"
)

// JSON renders indented JSON documents.
type JSON struct{}

// ComparisonDocument is the JSON shape of a comparison: the summary plus
// the three failure lists.
type ComparisonDocument struct {
	compare.Summary
	NewFailures        []result.Failure `json:"new_failures"`
	ResolvedFailures   []result.Failure `json:"resolved_failures"`
	PersistentFailures []result.Failure `json:"persistent_failures"`
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (j *JSON) Run(w io.Writer, r *result.ExecutionResult) error {
	return encode(w, r)
}

func (j *JSON) Comparison(w io.Writer, c *result.ComparisonResult) error {
	doc := ComparisonDocument{
		Summary:            compare.Summarize(c),
		NewFailures:        nonNil(c.NewFailures),
		ResolvedFailures:   nonNil(c.ResolvedFailures),
		PersistentFailures: nonNil(c.PersistentFailures),
	}
	return encode(w, doc)
}

func (j *JSON) History(w io.Writer, runs []db.RunSummary) error {
	if runs == nil {
		runs = []db.RunSummary{}
	}
	return encode(w, runs)
}

func nonNil(fs []result.Failure) []result.Failure {
	if fs == nil {
		return []result.Failure{}
	}
	return fs
}
