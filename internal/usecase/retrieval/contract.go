package retrieval

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/collection"
	"github.com/kailas-cloud/ragdex/internal/domain/point"
)

// Store is the vector store contract the engine drives.
//
// Describe returns domain.ErrCollectionNotFound for an absent collection.
// Create is a conditional write: it returns domain.ErrCollectionExists when
// the collection already exists, including when another process won a race.
// Search returns hits in descending score order.
//
//nolint:interfacebloat // one contract per backend driver
type Store interface {
	Ping(ctx context.Context) error
	Exists(ctx context.Context, name string) (bool, error)
	Describe(ctx context.Context, name string) (collection.Collection, error)
	Create(ctx context.Context, col collection.Collection) error
	Upsert(ctx context.Context, collectionName string, p point.Point) error
	Search(ctx context.Context, collectionName string, vector []float32, limit int) ([]point.Hit, error)
	Count(ctx context.Context, collectionName string) (int, error)
	Close() error
}

// Connector produces a Store handle. It is called lazily and again after a failed attempt.
type Connector interface {
	Connect(ctx context.Context) (Store, error)
}

// ConnectorFunc adapts a plain function to Connector.
type ConnectorFunc func(ctx context.Context) (Store, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context) (Store, error) { return f(ctx) }

// Catalog maps an embedding model id to the dimensionality of its vectors.
type Catalog interface {
	Dimensions(model string) (int, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Observer receives engine outcomes, typically to feed metrics.
type Observer interface {
	CollectionCreated(collection string)
	Ingested(collection string)
	Queried(collection string, results int)
}

type noopObserver struct{}

func (noopObserver) CollectionCreated(string) {}
func (noopObserver) Ingested(string) {}
func (noopObserver) Queried(string, int) {}
