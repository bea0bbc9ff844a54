// Package chromem stores collections in an embedded chromem-go database.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/collection"
	"github.com/kailas-cloud/ragdex/internal/domain/point"
)

// catalogName holds one document per collection with its shape in metadata.
// The colon keeps it outside the collection name alphabet.
const catalogName = "ragdex:collections"

const (
	metaDimensions = "dimensions"
	metaMetric     = "metric"
	metaModel      = "model"
	metaCreatedAt  = "created_at"
)

var errNoEmbedding = errors.New("chromem: vectors are computed by the engine")

// noEmbed keeps chromem from ever reaching out to its default embedding provider.
func noEmbed(context.Context, string) ([]float32, error) { return nil, errNoEmbedding }

// Config selects in-memory or on-disk storage.
type Config struct {
	Persistent bool
	Path       string
	Compress   bool
}

// Store implements retrieval.Store over chromem-go.
type Store struct {
	db      *chromem.DB
	catalog *chromem.Collection

	mu          sync.RWMutex
	collections map[string]collection.Collection
}

// Open creates or loads a chromem database and hydrates the collection catalog.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var db *chromem.DB
	if !cfg.Persistent {
		db = chromem.NewDB()
	} else {
		d, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, domain.Connection("chromem open", err)
		}
		db = d
	}

	catalog, err := db.GetOrCreateCollection(catalogName, nil, noEmbed)
	if err != nil {
		return nil, domain.Connection("chromem catalog", err)
	}

	s := &Store{db: db, catalog: catalog, collections: make(map[string]collection.Collection)}
	for name := range db.ListCollections() {
		if name == catalogName {
			continue
		}
		doc, err := catalog.GetByID(ctx, name)
		if err != nil {
			// A collection without a catalog entry has no recorded shape; leave it invisible.
			continue
		}
		col, err := collectionFromMeta(name, doc.Metadata)
		if err != nil {
			return nil, err
		}
		s.collections[name] = col
	}

	return s, nil
}

func collectionFromMeta(name string, meta map[string]string) (collection.Collection, error) {
	dims, err := strconv.Atoi(meta[metaDimensions])
	if err != nil || dims <= 0 {
		return collection.Collection{}, fmt.Errorf("chromem catalog entry %q has invalid dimensions %q", name, meta[metaDimensions])
	}
	createdAt, _ := strconv.ParseInt(meta[metaCreatedAt], 10, 64)
	return collection.Reconstruct(name, dims, meta[metaMetric], meta[metaModel], createdAt), nil
}

// Ping always succeeds for an embedded database.
func (s *Store) Ping(context.Context) error { return nil }

// Exists reports whether the collection is registered.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

// Describe returns the registered collection shape.
func (s *Store) Describe(_ context.Context, name string) (collection.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return collection.Collection{}, fmt.Errorf("collection %q: %w", name, domain.ErrCollectionNotFound)
	}
	return col, nil
}

// Create registers a collection. chromem's CreateCollection overwrites silently,
// so the existence check and the write share one lock.
func (s *Store) Create(ctx context.Context, col collection.Collection) error {
	name := col.Name()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("collection %q: %w", name, domain.ErrCollectionExists)
	}

	meta := map[string]string{
		metaDimensions: strconv.Itoa(col.Dimensions()),
		metaMetric:     col.Metric(),
		metaModel:      col.Model(),
		metaCreatedAt:  strconv.FormatInt(col.CreatedAt(), 10),
	}
	if _, err := s.db.CreateCollection(name, maps.Clone(meta), noEmbed); err != nil {
		return domain.Connection("chromem create", err)
	}
	entry := chromem.Document{ID: name, Metadata: meta, Embedding: []float32{1}, Content: name}
	if err := s.catalog.AddDocument(ctx, entry); err != nil {
		return domain.Connection("chromem catalog", errors.Join(err, s.db.DeleteCollection(name)))
	}

	s.collections[name] = col
	return nil
}

func (s *Store) collection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	_, ok := s.collections[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", name, domain.ErrCollectionNotFound)
	}
	c := s.db.GetCollection(name, noEmbed)
	if c == nil {
		return nil, fmt.Errorf("collection %q: %w", name, domain.ErrCollectionNotFound)
	}
	return c, nil
}

// Upsert adds one document with its precomputed embedding.
func (s *Store) Upsert(ctx context.Context, collectionName string, p point.Point) error {
	c, err := s.collection(collectionName)
	if err != nil {
		return err
	}

	meta := p.Payload().Map()
	content := meta[point.FieldContent]
	delete(meta, point.FieldContent)

	doc := chromem.Document{
		ID:        p.ID(),
		Metadata:  meta,
		Embedding: p.Vector(),
		Content:   content,
	}
	if err := c.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem add document: %w", err)
	}
	return nil
}

// Search returns the nearest documents by cosine similarity, nearest first.
func (s *Store) Search(ctx context.Context, collectionName string, vector []float32, limit int) ([]point.Hit, error) {
	c, err := s.collection(collectionName)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the document count.
	if n := c.Count(); limit > n {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := c.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]point.Hit, len(results))
	for i, r := range results {
		payload := point.PayloadFromMap(r.Metadata)
		payload.Content = r.Content
		hits[i] = point.Hit{ID: r.ID, Score: float64(r.Similarity), Payload: payload}
	}
	return hits, nil
}

// Count returns the number of documents in the collection.
func (s *Store) Count(_ context.Context, collectionName string) (int, error) {
	c, err := s.collection(collectionName)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// Close is a no-op; persistent databases write through on every change.
func (s *Store) Close() error { return nil }
