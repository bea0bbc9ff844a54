package embedding

import (
	"maps"
	"strings"
	"sync"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// knownDimensions lists the output width of commonly served embedding models.
var knownDimensions = map[string]int{
	"BAAI/bge-small-en":      384,
	"BAAI/bge-small-en-v1.5": 384,
	"BAAI/bge-base-en-v1.5":  768,
	"BAAI/bge-large-en-v1.5": 1024,
	"BAAI/bge-m3":            1024,
	"bge-small-en":           384,

	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,

	"nomic-embed-text":                       768,
	"nomic-ai/nomic-embed-text-v1.5":         768,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"intfloat/e5-mistral-7b-instruct":        4096,
	"Qwen/Qwen3-Embedding-8B":                4096,
}

// Catalog maps embedding model ids to vector dimensionality.
// Overrides take precedence over the built-in table.
type Catalog struct {
	mu   sync.RWMutex
	dims map[string]int
}

// NewCatalog creates a catalog seeded with the built-in table plus overrides.
func NewCatalog(overrides map[string]int) *Catalog {
	dims := maps.Clone(knownDimensions)
	for model, d := range overrides {
		if d > 0 {
			dims[model] = d
		}
	}
	return &Catalog{dims: dims}
}

// Register adds or replaces a model entry.
func (c *Catalog) Register(model string, dimensions int) {
	c.mu.Lock()
	c.dims[model] = dimensions
	c.mu.Unlock()
}

// Dimensions returns the vector width of model.
// Unknown models produce a configuration error wrapping domain.ErrUnknownModel.
func (c *Catalog) Dimensions(model string) (int, error) {
	model = strings.TrimSpace(model)
	c.mu.RLock()
	d, ok := c.dims[model]
	c.mu.RUnlock()
	if !ok || d <= 0 {
		return 0, domain.Configuration(domain.ErrUnknownModel, "model %q", model)
	}
	return d, nil
}
