package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/collection"
	"github.com/kailas-cloud/ragdex/internal/domain/point"
)

const (
	testModel = "test-model"
	testDims  = 3
)

// memStore is an in-memory Store doing exact cosine search.
type memStore struct {
	mu          sync.Mutex
	collections map[string]collection.Collection
	points      map[string][]point.Point

	creates atomic.Int32
	closed  atomic.Bool

	// Optional overrides.
	createFn func(ctx context.Context, col collection.Collection) error
	searchFn func(ctx context.Context, name string, vector []float32, limit int) ([]point.Hit, error)
	upsertFn func(ctx context.Context, name string, p point.Point) error
}

func newMemStore() *memStore {
	return &memStore{
		collections: make(map[string]collection.Collection),
		points:      make(map[string][]point.Point),
	}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) Exists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *memStore) Describe(_ context.Context, name string) (collection.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.collections[name]
	if !ok {
		return collection.Collection{}, fmt.Errorf("collection %q: %w", name, domain.ErrCollectionNotFound)
	}
	return col, nil
}

func (m *memStore) Create(ctx context.Context, col collection.Collection) error {
	if m.createFn != nil {
		return m.createFn(ctx, col)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[col.Name()]; ok {
		return domain.ErrCollectionExists
	}
	m.creates.Add(1)
	m.collections[col.Name()] = col
	return nil
}

func (m *memStore) Upsert(ctx context.Context, name string, p point.Point) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, name, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		return domain.ErrCollectionNotFound
	}
	m.points[name] = append(m.points[name], p)
	return nil
}

func (m *memStore) Search(ctx context.Context, name string, vector []float32, limit int) ([]point.Hit, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, name, vector, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := make([]point.Hit, 0, len(m.points[name]))
	for _, p := range m.points[name] {
		hits = append(hits, point.Hit{ID: p.ID(), Score: cosine(vector, p.Vector()), Payload: p.Payload()})
	}
	slices.SortStableFunc(hits, func(a, b point.Hit) int { return cmp.Compare(b.Score, a.Score) })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *memStore) Count(_ context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points[name]), nil
}

func (m *memStore) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *memStore) pointCount(name string) int {
	n, _ := m.Count(context.Background(), name)
	return n
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// fixedEmbedder returns a preset vector per text, or fallback.
type fixedEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    atomic.Int32
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return domain.EmbeddingResult{Embedding: v, TotalTokens: 1}, nil
	}
	return domain.EmbeddingResult{Embedding: f.fallback, TotalTokens: 1}, nil
}

type mapCatalog map[string]int

func (c mapCatalog) Dimensions(model string) (int, error) {
	if d, ok := c[model]; ok {
		return d, nil
	}
	return 0, domain.Configuration(domain.ErrUnknownModel, "model %q", model)
}

var errProvider = errors.New("provider down")

func newTestEngine(t *testing.T, st *memStore, emb *fixedEmbedder) *Engine {
	t.Helper()
	conn := ConnectorFunc(func(context.Context) (Store, error) { return st, nil })
	return New(conn, mapCatalog{testModel: testDims}, emb, emb, testModel)
}
