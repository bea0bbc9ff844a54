// Package hashembed is a deterministic feature-hashing embedder for local runs and tests.
// Texts sharing words produce vectors with positive cosine similarity; no network is involved.
package hashembed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// DefaultDimensions is the vector width when none is configured.
const DefaultDimensions = 256

// ModelPrefix prefixes model ids reported by the embedder, e.g. "hash-256".
const ModelPrefix = "hash-"

// Embedder maps each lower-cased word to a signed bucket and L2-normalises the counts.
type Embedder struct {
	dimensions int
}

// New creates an embedder producing vectors of the given width.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// Model returns the model id, which encodes the width.
func (e *Embedder) Model() string {
	return fmt.Sprintf("%s%d", ModelPrefix, e.dimensions)
}

// Dimensions returns the vector width.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed implements domain.Embedder. Text without any word yields a zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("hash embed: %w", err)
	}

	vec := make([]float32, e.dimensions)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return domain.EmbeddingResult{
		Embedding:    vec,
		PromptTokens: len(tokens),
		TotalTokens:  len(tokens),
	}, nil
}
