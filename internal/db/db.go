// Package db is the key-value and vector search contract of the Redis driver.
// Consumers declare the narrow subset they need; the redis subpackage implements all of it.
package db

import (
	"context"
	"time"
)

// Store is everything the Redis driver offers.
//
//nolint:interfacebloat // facade; consumers use the narrow sub-interfaces
type Store interface {
	Pinger
	KVStore
	HashStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore holds opaque values: collection metadata and cached embeddings.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// HashStore holds point hashes.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// IndexManager creates and inspects vector indexes.
type IndexManager interface {
	CreateIndex(ctx context.Context, idx *VectorIndex) error
	IndexDimensions(ctx context.Context, index, field string) (int, error)
}

// Searcher queries vector indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*KNNResult, error)
	IndexCount(ctx context.Context, index string) (int, error)
}
