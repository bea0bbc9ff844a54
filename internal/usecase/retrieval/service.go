// Package retrieval is the semantic retrieval engine: collection lifecycle,
// append-only ingestion and score-thresholded nearest-neighbor query.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/collection"
	"github.com/kailas-cloud/ragdex/internal/domain/point"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

// ensureTimeout bounds the collection setup shared by concurrent callers.
const ensureTimeout = 30 * time.Second

// IngestRequest is one document to add to a collection.
type IngestRequest struct {
	Content    string
	Source     string
	Collection string
	Title      string
}

// Engine owns the store handle and runs ingestion and query against it.
type Engine struct {
	connector     Connector
	catalog       Catalog
	docEmbedder   Embedder
	queryEmbedder Embedder
	model         string

	minScore          float64
	maxLimit          int
	defaultCollection string
	observer          Observer
	logger            *zap.Logger

	mu    sync.Mutex
	state State
	store Store
	cause error

	ensureGroup singleflight.Group
}

// New creates an engine bound to one embedding model.
// docEmbedder vectorizes stored content; queryEmbedder vectorizes queries and may
// add an instruction prefix. Both must produce vectors of the same model.
func New(connector Connector, catalog Catalog, docEmbedder, queryEmbedder Embedder, model string) *Engine {
	defaults := domain.DefaultRetrieval()
	return &Engine{
		connector:         connector,
		catalog:           catalog,
		docEmbedder:       docEmbedder,
		queryEmbedder:     queryEmbedder,
		model:             model,
		minScore:          defaults.MinScore,
		maxLimit:          defaults.MaxLimit,
		defaultCollection: defaults.DefaultCollection,
		observer:          noopObserver{},
		logger:            zap.NewNop(),
	}
}

// WithMinScore sets the similarity floor for query results.
func (e *Engine) WithMinScore(minScore float64) *Engine {
	e.minScore = minScore
	return e
}

// WithMaxLimit caps the number of results one query may request.
func (e *Engine) WithMaxLimit(maxLimit int) *Engine {
	if maxLimit > 0 {
		e.maxLimit = maxLimit
	}
	return e
}

// WithDefaultCollection sets the collection used when a request names none.
func (e *Engine) WithDefaultCollection(name string) *Engine {
	if name != "" {
		e.defaultCollection = name
	}
	return e
}

// WithObserver attaches an outcome observer.
func (e *Engine) WithObserver(o Observer) *Engine {
	if o != nil {
		e.observer = o
	}
	return e
}

// WithLogger sets the engine logger.
func (e *Engine) WithLogger(l *zap.Logger) *Engine {
	if l != nil {
		e.logger = l.Named("retrieval")
	}
	return e
}

// Model returns the embedding model id the engine writes and reads with.
func (e *Engine) Model() string { return e.model }

// Ping checks that the store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	st, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	if err := st.Ping(ctx); err != nil {
		return domain.Connection("ping vector store", err)
	}
	return nil
}

func (e *Engine) collectionName(name string) string {
	if name == "" {
		return e.defaultCollection
	}
	return name
}

// EnsureCollection returns the named collection, creating it for model when absent.
// Concurrent calls for one name share a single round of store calls.
func (e *Engine) EnsureCollection(ctx context.Context, name, model string) (collection.Collection, error) {
	name = e.collectionName(name)
	if err := collection.ValidateName(name); err != nil {
		return collection.Collection{}, err
	}
	st, err := e.acquire(ctx)
	if err != nil {
		return collection.Collection{}, err
	}

	// The setup is shared, so it must not die with whichever caller started it.
	ch := e.ensureGroup.DoChan(name+"\x00"+model, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), ensureTimeout)
		defer cancel()
		return e.ensure(shared, st, name, model)
	})
	select {
	case <-ctx.Done():
		return collection.Collection{}, fmt.Errorf("ensure collection %q: %w", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return collection.Collection{}, res.Err
		}
		return res.Val.(collection.Collection), nil //nolint:forcetypeassert // ensure returns collection.Collection
	}
}

func (e *Engine) ensure(ctx context.Context, st Store, name, model string) (collection.Collection, error) {
	exists, err := st.Exists(ctx, name)
	if err != nil {
		return collection.Collection{}, domain.Connection("check collection", err)
	}
	if exists {
		return e.describe(ctx, st, name)
	}

	dims, err := e.catalog.Dimensions(model)
	if err != nil {
		return collection.Collection{}, err //nolint:wrapcheck // catalog errors carry their category
	}
	want, err := collection.New(name, dims, model)
	if err != nil {
		return collection.Collection{}, err
	}

	err = st.Create(ctx, want)
	if err == nil {
		e.observer.CollectionCreated(name)
		e.logger.Info("collection created",
			zap.String("collection", name),
			zap.Int("dimensions", dims),
			zap.String("model", model),
		)
		return want, nil
	}
	if !errors.Is(err, domain.ErrCollectionExists) {
		return collection.Collection{}, err //nolint:wrapcheck // store errors carry their category
	}

	// Another writer created it between Exists and Create.
	got, err := e.describe(ctx, st, name)
	if err != nil {
		return collection.Collection{}, err
	}
	if !got.SameShape(want) {
		return collection.Collection{}, domain.Configuration(domain.ErrDimensionMismatch,
			"collection %q exists with %d dimensions (%s, model %q), want %d (model %q)",
			name, got.Dimensions(), got.Metric(), got.Model(), dims, model)
	}
	e.logger.Debug("collection created concurrently", zap.String("collection", name))
	return got, nil
}

func (e *Engine) describe(ctx context.Context, st Store, name string) (collection.Collection, error) {
	col, err := st.Describe(ctx, name)
	if err != nil {
		return collection.Collection{}, err //nolint:wrapcheck // store errors carry their category
	}
	return col, nil
}

// checkModel rejects a collection recorded for a different embedding model.
func (e *Engine) checkModel(col collection.Collection) error {
	if col.Model() != "" && col.Model() != e.model {
		return domain.Configuration(domain.ErrModelMismatch,
			"collection %q was created for model %q, engine uses %q", col.Name(), col.Model(), e.model)
	}
	return nil
}

// Ingest embeds one document and appends it as a new point. Returns the point id.
// Every failure matches domain.ErrIngestion as well as its cause.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (string, error) {
	id, err := e.ingest(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrIngestion, err)
	}
	return id, nil
}

func (e *Engine) ingest(ctx context.Context, req IngestRequest) (string, error) {
	payload, err := point.NewPayload(req.Content, req.Source, req.Title, e.model)
	if err != nil {
		return "", err
	}

	col, err := e.EnsureCollection(ctx, req.Collection, e.model)
	if err != nil {
		return "", fmt.Errorf("ensure collection: %w", err)
	}
	if err := e.checkModel(col); err != nil {
		return "", err
	}

	// Embed before any write so a failure leaves nothing behind.
	res, err := e.docEmbedder.Embed(ctx, payload.Content)
	if err != nil {
		return "", fmt.Errorf("vectorize document: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	if err := col.CheckVector(res.Embedding); err != nil {
		return "", err
	}

	p, err := point.New(uuid.NewString(), res.Embedding, payload)
	if err != nil {
		return "", err
	}

	st, err := e.acquire(ctx)
	if err != nil {
		return "", err
	}
	if err := st.Upsert(ctx, col.Name(), p); err != nil {
		return "", fmt.Errorf("upsert point: %w", err)
	}

	e.observer.Ingested(col.Name())
	return p.ID(), nil
}

// Query returns up to limit points scoring at least the similarity floor, best first.
// An absent or empty collection yields an empty list. limit <= 0 requests nothing.
// Every failure matches domain.ErrQuery as well as its cause.
func (e *Engine) Query(ctx context.Context, text, collectionName string, limit int) ([]result.Result, error) {
	results, err := e.query(ctx, text, e.collectionName(collectionName), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrQuery, err)
	}
	return results, nil
}

func (e *Engine) query(ctx context.Context, text, name string, limit int) ([]result.Result, error) {
	if limit <= 0 {
		return []result.Result{}, nil
	}
	if text == "" {
		return nil, fmt.Errorf("query text is required: %w", domain.ErrInvalidArgument)
	}
	if err := collection.ValidateName(name); err != nil {
		return nil, err
	}
	limit = min(limit, e.maxLimit)

	st, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}

	col, err := st.Describe(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			e.observer.Queried(name, 0)
			return []result.Result{}, nil
		}
		return nil, fmt.Errorf("describe collection: %w", err)
	}
	if err := e.checkModel(col); err != nil {
		return nil, err
	}

	res, err := e.queryEmbedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	if err := col.CheckVector(res.Embedding); err != nil {
		return nil, err
	}

	hits, err := st.Search(ctx, name, res.Embedding, limit)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			e.observer.Queried(name, 0)
			return []result.Result{}, nil
		}
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]result.Result, 0, len(hits))
	for _, h := range hits {
		if len(results) == limit {
			break
		}
		if !(h.Score >= e.minScore) { // NaN never passes
			continue
		}
		results = append(results, result.FromHit(h))
	}

	e.observer.Queried(name, len(results))
	return results, nil
}
