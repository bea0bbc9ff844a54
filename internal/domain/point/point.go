package point

import (
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// MaxContentSize is the maximum composed content size in bytes.
const MaxContentSize = 163840 // 160KB

// Payload keys as persisted by every vector store driver.
const (
	FieldContent = "content"
	FieldSource  = "source"
	FieldTitle   = "title"
	FieldModel   = "model"
)

// Payload is the metadata stored alongside a point's vector.
// Content is exactly the text the vector was computed from.
type Payload struct {
	Content string
	Source  string
	Title   string
	Model   string
}

// NewPayload validates caller input and composes the embedding text.
// A title is prepended on its own line so that title terms influence retrieval.
func NewPayload(content, source, title, model string) (Payload, error) {
	if content == "" {
		return Payload{}, fmt.Errorf("content is required: %w", domain.ErrInvalidArgument)
	}
	composed := content
	if title != "" {
		composed = title + "\n" + content
	}
	if len(composed) > MaxContentSize {
		return Payload{}, fmt.Errorf("content too large (max %d bytes): %w", MaxContentSize, domain.ErrInvalidArgument)
	}
	return Payload{Content: composed, Source: source, Title: title, Model: model}, nil
}

// Map returns the payload as flat string fields; empty optional fields are omitted.
func (p Payload) Map() map[string]string {
	m := map[string]string{
		FieldContent: p.Content,
		FieldSource:  p.Source,
	}
	if p.Title != "" {
		m[FieldTitle] = p.Title
	}
	if p.Model != "" {
		m[FieldModel] = p.Model
	}
	return m
}

// PayloadFromMap hydrates a payload from stored fields. Missing keys read as "".
func PayloadFromMap(m map[string]string) Payload {
	return Payload{
		Content: m[FieldContent],
		Source:  m[FieldSource],
		Title:   m[FieldTitle],
		Model:   m[FieldModel],
	}
}

// Point is one stored (id, vector, payload) triple. Immutable once built.
type Point struct {
	id      string
	vector  []float32
	payload Payload
}

// New builds a point. The vector must already be derived from payload.Content.
func New(id string, vector []float32, payload Payload) (Point, error) {
	if id == "" {
		return Point{}, fmt.Errorf("point ID is required: %w", domain.ErrInvalidArgument)
	}
	if len(vector) == 0 {
		return Point{}, fmt.Errorf("point vector is required: %w", domain.ErrInvalidArgument)
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	return Point{id: id, vector: v, payload: payload}, nil
}

// ID returns the point identifier.
func (p *Point) ID() string { return p.id }

// Vector returns the embedding vector.
func (p *Point) Vector() []float32 { return p.vector }

// Payload returns the stored metadata.
func (p *Point) Payload() Payload { return p.payload }

// Hit is a raw nearest-neighbor match as returned by a vector store, nearest first.
type Hit struct {
	ID      string
	Score   float64
	Payload Payload
}
