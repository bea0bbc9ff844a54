package result

import "github.com/kailas-cloud/ragdex/internal/domain/point"

// Result is a single query hit projected for callers.
type Result struct {
	id      string
	content string
	source  string
	score   float64
}

// New creates a search result.
func New(id, content, source string, score float64) Result {
	return Result{id: id, content: content, source: source, score: score}
}

// FromHit projects a raw store match.
func FromHit(h point.Hit) Result {
	return New(h.ID, h.Payload.Content, h.Payload.Source, h.Score)
}

// ID returns the point identifier.
func (r *Result) ID() string { return r.id }

// Content returns the stored content (title included when one was supplied).
func (r *Result) Content() string { return r.content }

// Source returns the provenance string.
func (r *Result) Source() string { return r.source }

// Score returns the cosine similarity.
func (r *Result) Score() float64 { return r.score }
