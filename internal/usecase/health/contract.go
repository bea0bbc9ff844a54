package health

import "context"

// StorePinger is satisfied by the retrieval engine: a nil error means the
// vector store answered within the check deadline.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker is satisfied by the embedder chain. Providers without a
// check report healthy.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
