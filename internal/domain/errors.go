package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error categories surfaced by the retrieval engine.
var (
	// ErrConnection signals an unreachable vector store or embedding provider.
	ErrConnection = errors.New("connection error")
	// ErrConfiguration signals input the caller must fix (unknown model, dimension mismatch).
	ErrConfiguration = errors.New("configuration error")
	// ErrIngestion wraps any failure of the ensure-embed-upsert sequence.
	ErrIngestion = errors.New("ingestion error")
	// ErrQuery wraps any failure of the embed-search sequence.
	ErrQuery = errors.New("query error")
	// ErrNotInitialized signals an engine without a usable store handle.
	ErrNotInitialized = errors.New("engine not initialized")
)

// Detail sentinels. Each one is always joined with a category above.
var (
	// ErrUnknownModel signals an embedding model with no known dimensionality.
	ErrUnknownModel = errors.New("unknown embedding model")
	// ErrModelMismatch signals a collection created for a different embedding model.
	ErrModelMismatch = errors.New("embedding model mismatch")
	// ErrDimensionMismatch signals a vector whose length differs from the collection's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidArgument signals a malformed caller request.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCollectionNotFound signals a missing collection.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrCollectionExists signals a create request for an existing collection.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrEngineClosed signals an engine that was shut down.
	ErrEngineClosed = errors.New("engine closed")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrChatProviderError signals a chat completion provider failure.
	ErrChatProviderError = errors.New("chat provider error")
)

// Configuration joins ErrConfiguration with a detail sentinel.
func Configuration(detail error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrConfiguration, detail)
}

// Connection marks err as a connectivity failure unless it already carries a category.
// A canceled or expired context belongs to the caller, not the backend, and is left as is.
func Connection(op string, err error) error {
	if errors.Is(err, ErrConnection) || errors.Is(err, ErrConfiguration) || errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrConnection, err)
}
