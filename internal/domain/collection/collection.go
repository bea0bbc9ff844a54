package collection

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// MaxNameLength bounds collection names; every backend accepts this length.
const MaxNameLength = 255

// Collection is a named vector index (immutable value object).
// Dimensions and metric are fixed at creation.
type Collection struct {
	name       string
	dimensions int
	metric     string
	model      string
	createdAt  int64
}

// ValidateName checks a caller-supplied collection name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name is required: %w", domain.ErrInvalidArgument)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("collection name too long (max %d): %w", MaxNameLength, domain.ErrInvalidArgument)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf(
			"collection name must be alphanumeric with underscores, dots and hyphens: %w",
			domain.ErrInvalidArgument,
		)
	}
	return nil
}

// New validates and creates a cosine Collection for the given embedding model.
func New(name string, dimensions int, model string) (Collection, error) {
	if err := ValidateName(name); err != nil {
		return Collection{}, err
	}
	if dimensions <= 0 {
		return Collection{}, fmt.Errorf("vector dimension must be positive: %w", domain.ErrInvalidArgument)
	}
	return Collection{
		name:       name,
		dimensions: dimensions,
		metric:     domain.DistanceCosine,
		model:      model,
		createdAt:  time.Now().UnixMilli(),
	}, nil
}

// Reconstruct creates a Collection without validation (storage hydration).
func Reconstruct(name string, dimensions int, metric, model string, createdAt int64) Collection {
	if metric == "" {
		metric = domain.DistanceCosine
	}
	return Collection{
		name:       name,
		dimensions: dimensions,
		metric:     metric,
		model:      model,
		createdAt:  createdAt,
	}
}

// Name returns the collection name.
func (c Collection) Name() string { return c.name }

// Dimensions returns the fixed vector dimensionality.
func (c Collection) Dimensions() int { return c.dimensions }

// Metric returns the distance metric.
func (c Collection) Metric() string { return c.metric }

// Model returns the embedding model the collection was created for ("" if unrecorded).
func (c Collection) Model() string { return c.model }

// CreatedAt returns the creation timestamp (unix millis, 0 if unrecorded).
func (c Collection) CreatedAt() int64 { return c.createdAt }

// SameShape reports whether other can serve the same vectors as c.
// An unrecorded model on either side is not treated as a conflict.
func (c Collection) SameShape(other Collection) bool {
	if c.dimensions != other.dimensions || c.metric != other.metric {
		return false
	}
	return c.model == "" || other.model == "" || c.model == other.model
}

// CheckVector rejects a vector that cannot be scored by cosine similarity against the
// collection: a length other than its dimensionality, a NaN or infinite component,
// or a zero norm (text with nothing embeddable in it).
func (c Collection) CheckVector(v []float32) error {
	if len(v) != c.dimensions {
		return domain.Configuration(domain.ErrDimensionMismatch,
			"collection %q expects %d dimensions, got %d", c.name, c.dimensions, len(v))
	}
	var norm float64
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("vector component %d is %v: %w", i, x, domain.ErrEmbeddingProviderError)
		}
		norm += f * f
	}
	if norm == 0 {
		return fmt.Errorf("text has no embeddable content (zero vector): %w", domain.ErrInvalidArgument)
	}
	return nil
}
