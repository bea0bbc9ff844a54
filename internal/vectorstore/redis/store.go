// Package redis stores collections and points in Redis 8 with the query engine.
//
// Layout per collection:
//
//	ragdex:collection:{name}   JSON metadata, written with SET NX
//	ragdex:{name}:idx          FT index, HNSW cosine over __vector
//	ragdex:{name}:pt:{id}      HASH with payload fields and the FLOAT32 vector blob
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/collection"
	"github.com/kailas-cloud/ragdex/internal/domain/point"
)

// store is the consumer interface over the Redis facade (ISP).
//
//nolint:interfacebloat // vector store needs kv, hash, index and search operations
type store interface {
	db.Pinger
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, idx *db.VectorIndex) error
	IndexDimensions(ctx context.Context, index, field string) (int, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.KNNResult, error)
	IndexCount(ctx context.Context, index string) (int, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Store implements retrieval.Store over db.Store.
type Store struct {
	store   store
	hnsw    HNSWConfig
	closeFn func()
}

// New creates a Redis vector store.
func New(s store) *Store {
	return &Store{store: s, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithHNSW configures HNSW index parameters.
func (s *Store) WithHNSW(cfg HNSWConfig) *Store {
	if cfg.M > 0 {
		s.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		s.hnsw.EFConstruct = cfg.EFConstruct
	}
	return s
}

// WithCloser sets the function Close releases the connection with.
func (s *Store) WithCloser(fn func()) *Store {
	s.closeFn = fn
	return s
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return domain.Connection("redis ping", err)
	}
	return nil
}

// Exists reports whether collection metadata is present.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := s.store.Exists(ctx, metaKey(name))
	if err != nil {
		return false, domain.Connection("redis exists", err)
	}
	return ok, nil
}

// Describe loads collection metadata.
func (s *Store) Describe(ctx context.Context, name string) (collection.Collection, error) {
	data, err := s.store.Get(ctx, metaKey(name))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return collection.Collection{}, fmt.Errorf("collection %q: %w", name, domain.ErrCollectionNotFound)
		}
		return collection.Collection{}, domain.Connection("redis describe", err)
	}
	return metaToCollection(data)
}

// Create claims the metadata key with SET NX, then creates the FT index.
// Losing the claim means another writer created the collection first.
// On FT.CREATE failure the claim is rolled back via DEL. A leftover index is
// adopted only when its vector width matches the collection.
func (s *Store) Create(ctx context.Context, col collection.Collection) error {
	name := col.Name()

	idx := s.pointIndex(col)
	if err := idx.Validate(); err != nil {
		return fmt.Errorf("point index: %w", err)
	}
	meta, err := collectionToMeta(col)
	if err != nil {
		return err
	}

	claimed, err := s.store.SetNX(ctx, metaKey(name), meta)
	if err != nil {
		return domain.Connection("redis create", err)
	}
	if !claimed {
		return fmt.Errorf("collection %q: %w", name, domain.ErrCollectionExists)
	}

	err = s.store.CreateIndex(ctx, idx)
	if errors.Is(err, db.ErrIndexExists) {
		// A leftover index whose metadata was removed keeps serving the same prefix.
		err = s.adoptIndex(ctx, col, idx.Name)
	}
	if err != nil {
		if delErr := s.store.Del(ctx, metaKey(name)); delErr != nil {
			return domain.Connection("redis create", errors.Join(err, fmt.Errorf("rollback meta: %w", delErr)))
		}
		return domain.Connection("redis create", err)
	}

	return nil
}

// adoptIndex accepts an existing index for col. Redis skips hashes whose blob
// length differs from DIM, so a narrower or wider index would never match a point.
func (s *Store) adoptIndex(ctx context.Context, col collection.Collection, index string) error {
	dims, err := s.store.IndexDimensions(ctx, index, vectorField)
	if err != nil {
		return fmt.Errorf("inspect existing index: %w", err)
	}
	if dims != col.Dimensions() {
		return domain.Configuration(domain.ErrDimensionMismatch,
			"existing index %q has %d dimensions, collection %q needs %d", index, dims, col.Name(), col.Dimensions())
	}
	return nil
}

func (s *Store) pointIndex(col collection.Collection) *db.VectorIndex {
	return &db.VectorIndex{
		Name:   indexName(col.Name()),
		Prefix: pointPrefix(col.Name()),
		Tags:   []string{point.FieldSource, point.FieldModel},
		Vector: db.VectorField{
			Name:           vectorField,
			Dimensions:     col.Dimensions(),
			M:              s.hnsw.M,
			EFConstruction: s.hnsw.EFConstruct,
		},
	}
}

// Upsert writes one point hash. The index picks it up by key prefix.
func (s *Store) Upsert(ctx context.Context, collectionName string, p point.Point) error {
	if err := s.store.HSet(ctx, pointKey(collectionName, p.ID()), pointToHash(p)); err != nil {
		return domain.Connection("redis upsert", err)
	}
	return nil
}

// Search runs KNN over the collection index, nearest first.
func (s *Store) Search(ctx context.Context, collectionName string, vector []float32, limit int) ([]point.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	sr, err := s.store.SearchKNN(ctx, &db.KNNQuery{
		Index:        indexName(collectionName),
		VectorField:  vectorField,
		Vector:       vector,
		K:            limit,
		ReturnFields: []string{point.FieldContent, point.FieldSource, point.FieldTitle, point.FieldModel},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, fmt.Errorf("collection %q: %w", collectionName, domain.ErrCollectionNotFound)
		}
		return nil, domain.Connection("redis search", err)
	}

	prefix := pointPrefix(collectionName)
	hits := make([]point.Hit, 0, len(sr.Hits))
	for _, h := range sr.Hits {
		hits = append(hits, point.Hit{
			ID:      strings.TrimPrefix(h.Key, prefix),
			Score:   h.Similarity,
			Payload: point.PayloadFromMap(h.Fields),
		})
	}
	return hits, nil
}

// Count returns the number of indexed points.
func (s *Store) Count(ctx context.Context, collectionName string) (int, error) {
	n, err := s.store.IndexCount(ctx, indexName(collectionName))
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, fmt.Errorf("collection %q: %w", collectionName, domain.ErrCollectionNotFound)
		}
		return 0, domain.Connection("redis count", err)
	}
	return n, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
