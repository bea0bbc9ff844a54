package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/collection"
	"github.com/kailas-cloud/ragdex/internal/domain/point"
)

func TestEnsureCollection_Idempotent(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}})
	ctx := context.Background()

	first, err := e.EnsureCollection(ctx, "docs", testModel)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	second, err := e.EnsureCollection(ctx, "docs", testModel)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	if got := st.creates.Load(); got != 1 {
		t.Errorf("creates = %d, want 1", got)
	}
	if first.Dimensions() != testDims || second.Dimensions() != testDims {
		t.Errorf("dimensions = %d/%d, want %d", first.Dimensions(), second.Dimensions(), testDims)
	}
	if second.Metric() != domain.DistanceCosine || second.Model() != testModel {
		t.Errorf("unexpected shape %q %q", second.Metric(), second.Model())
	}
}

func TestEnsureCollection_UnknownModel(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(t, st, &fixedEmbedder{})

	_, err := e.EnsureCollection(context.Background(), "docs", "nope")
	if !errors.Is(err, domain.ErrConfiguration) || !errors.Is(err, domain.ErrUnknownModel) {
		t.Fatalf("expected configuration/unknown model, got %v", err)
	}
	if st.creates.Load() != 0 {
		t.Error("no collection should be created for an unknown model")
	}
}

func TestEnsureCollection_InvalidName(t *testing.T) {
	e := newTestEngine(t, newMemStore(), &fixedEmbedder{})
	_, err := e.EnsureCollection(context.Background(), "has space", testModel)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestEnsureCollection_BenignRace(t *testing.T) {
	st := newMemStore()
	// Another process creates the collection right before this one does.
	st.createFn = func(_ context.Context, col collection.Collection) error {
		st.mu.Lock()
		st.collections[col.Name()] = collection.Reconstruct(col.Name(), testDims, domain.DistanceCosine, testModel, 1)
		st.mu.Unlock()
		return fmt.Errorf("collection %q: %w", col.Name(), domain.ErrCollectionExists)
	}
	e := newTestEngine(t, st, &fixedEmbedder{})

	col, err := e.EnsureCollection(context.Background(), "docs", testModel)
	if err != nil {
		t.Fatalf("benign race should succeed, got %v", err)
	}
	if col.CreatedAt() != 1 {
		t.Errorf("expected the winner's collection, got createdAt=%d", col.CreatedAt())
	}
}

func TestEnsureCollection_CanceledCallerLeavesOthersRunning(t *testing.T) {
	st := newMemStore()
	entered, release := make(chan struct{}), make(chan struct{})
	st.createFn = func(ctx context.Context, col collection.Collection) error {
		close(entered)
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		st.collections[col.Name()] = col
		return nil
	}
	e := newTestEngine(t, st, &fixedEmbedder{})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := e.EnsureCollection(first, "docs", testModel)
		firstErr <- err
	}()
	<-entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := e.EnsureCollection(context.Background(), "docs", testModel)
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	err := <-firstErr
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled caller: expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrConnection) {
		t.Errorf("cancellation must not read as a store outage: %v", err)
	}

	close(release)
	if err := <-secondErr; err != nil {
		t.Fatalf("second caller must not inherit the cancellation: %v", err)
	}
	if _, ok := st.collections["docs"]; !ok {
		t.Error("collection was not created")
	}
}

func TestEnsureCollection_RaceWithDifferentShape(t *testing.T) {
	st := newMemStore()
	st.createFn = func(_ context.Context, col collection.Collection) error {
		st.mu.Lock()
		st.collections[col.Name()] = collection.Reconstruct(col.Name(), 768, domain.DistanceCosine, "other", 1)
		st.mu.Unlock()
		return domain.ErrCollectionExists
	}
	e := newTestEngine(t, st, &fixedEmbedder{})

	_, err := e.EnsureCollection(context.Background(), "docs", testModel)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestIngest_RoundTrip(t *testing.T) {
	st := newMemStore()
	emb := &fixedEmbedder{vectors: map[string][]float32{
		"Paris is the capital of France": {1, 0.1, 0},
		"capital of France":              {0.9, 0.2, 0},
	}, fallback: []float32{0, 0, 1}}
	e := newTestEngine(t, st, emb)
	ctx := context.Background()

	id, err := e.Ingest(ctx, IngestRequest{
		Content:    "Paris is the capital of France",
		Source:     "https://example.com/paris",
		Collection: "geo",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if id == "" {
		t.Fatal("empty id")
	}

	results, err := e.Query(ctx, "capital of France", "geo", 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if r.ID() != id || r.Content() != "Paris is the capital of France" || r.Source() != "https://example.com/paris" {
		t.Errorf("unexpected result %+v", r)
	}
	if r.Score() < 0.70 {
		t.Errorf("score = %f, want >= 0.70", r.Score())
	}
}

func TestIngest_QueryExactContentFindsPoint(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{0.3, 0.4, 0.5}})
	ctx := context.Background()

	id, err := e.Ingest(ctx, IngestRequest{Content: "c", Source: "s", Collection: "docs"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	results, err := e.Query(ctx, "c", "docs", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].ID() != id || results[0].Content() != "c" {
		t.Fatalf("expected the ingested point, got %+v", results)
	}
}

func TestIngest_TitleIsEmbeddedAndStored(t *testing.T) {
	st := newMemStore()
	emb := &fixedEmbedder{fallback: []float32{1, 0, 0}}
	var embedded string
	e := New(
		ConnectorFunc(func(context.Context) (Store, error) { return st, nil }),
		mapCatalog{testModel: testDims},
		embedderFunc(func(ctx context.Context, text string) (domain.EmbeddingResult, error) {
			embedded = text
			return emb.Embed(ctx, text)
		}),
		emb, testModel,
	)

	if _, err := e.Ingest(context.Background(), IngestRequest{Content: "body", Title: "Heading", Collection: "docs"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if embedded != "Heading\nbody" {
		t.Errorf("embedded text = %q", embedded)
	}
	if got := st.points["docs"][0].Payload(); got.Content != "Heading\nbody" || got.Title != "Heading" || got.Model != testModel {
		t.Errorf("stored payload = %+v", got)
	}
}

type embedderFunc func(ctx context.Context, text string) (domain.EmbeddingResult, error)

func (f embedderFunc) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return f(ctx, text)
}

func TestIngest_EmptyContent(t *testing.T) {
	st := newMemStore()
	emb := &fixedEmbedder{fallback: []float32{1, 0, 0}}
	e := newTestEngine(t, st, emb)

	_, err := e.Ingest(context.Background(), IngestRequest{Collection: "docs"})
	if !errors.Is(err, domain.ErrIngestion) || !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ingestion/invalid argument, got %v", err)
	}
	if emb.calls.Load() != 0 || st.creates.Load() != 0 {
		t.Error("invalid input must not reach the embedder or the store")
	}
}

func TestIngest_EmbedFailureLeavesNoPoint(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(t, st, &fixedEmbedder{err: errProvider})

	_, err := e.Ingest(context.Background(), IngestRequest{Content: "x", Collection: "docs"})
	if !errors.Is(err, domain.ErrIngestion) || !errors.Is(err, errProvider) {
		t.Fatalf("expected ingestion error wrapping the cause, got %v", err)
	}
	if n := st.pointCount("docs"); n != 0 {
		t.Errorf("points = %d, want 0", n)
	}
}

func TestIngest_UpsertFailure(t *testing.T) {
	st := newMemStore()
	boom := domain.Connection("upsert", errors.New("refused"))
	st.upsertFn = func(context.Context, string, point.Point) error { return boom }
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}})

	_, err := e.Ingest(context.Background(), IngestRequest{Content: "x", Collection: "docs"})
	if !errors.Is(err, domain.ErrIngestion) || !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("expected ingestion/connection error, got %v", err)
	}
}

func TestIngest_DimensionMismatch(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0}})

	_, err := e.Ingest(context.Background(), IngestRequest{Content: "x", Collection: "docs"})
	if !errors.Is(err, domain.ErrConfiguration) || !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if st.pointCount("docs") != 0 {
		t.Error("mismatched vector must not be stored")
	}
}

func TestIngest_ModelMismatch(t *testing.T) {
	st := newMemStore()
	st.collections["docs"] = collection.Reconstruct("docs", testDims, domain.DistanceCosine, "other-model", 1)
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}})

	_, err := e.Ingest(context.Background(), IngestRequest{Content: "x", Collection: "docs"})
	if !errors.Is(err, domain.ErrModelMismatch) {
		t.Fatalf("expected ErrModelMismatch, got %v", err)
	}
}

func TestIngest_DefaultCollection(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}}).WithDefaultCollection("fallback")

	if _, err := e.Ingest(context.Background(), IngestRequest{Content: "x"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if st.pointCount("fallback") != 1 {
		t.Error("expected point in the default collection")
	}
}

func TestIngest_ConcurrentIntoFreshCollection(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}})

	const n = 50
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = e.Ingest(context.Background(), IngestRequest{
				Content:    fmt.Sprintf("doc %d", i),
				Collection: "fresh",
			})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for i := range n {
		if errs[i] != nil {
			t.Fatalf("ingest %d: %v", i, errs[i])
		}
		seen[ids[i]] = struct{}{}
	}
	if len(seen) != n {
		t.Errorf("distinct ids = %d, want %d", len(seen), n)
	}
	if got := st.creates.Load(); got != 1 {
		t.Errorf("creates = %d, want 1", got)
	}
	if got := st.pointCount("fresh"); got != n {
		t.Errorf("points = %d, want %d", got, n)
	}
}

func TestQuery_ThresholdLaw(t *testing.T) {
	st := newMemStore()
	st.collections["docs"] = collection.Reconstruct("docs", testDims, domain.DistanceCosine, testModel, 1)
	st.searchFn = func(context.Context, string, []float32, int) ([]point.Hit, error) {
		return []point.Hit{
			{ID: "a", Score: 0.95},
			{ID: "b", Score: 0.71},
			{ID: "c", Score: 0.70},
			{ID: "d", Score: 0.69999},
			{ID: "e", Score: 0.2},
		}, nil
	}
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}})

	results, err := e.Query(context.Background(), "q", "docs", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var got []string
	for _, r := range results {
		if r.Score() < 0.70 {
			t.Errorf("result %s below floor: %f", r.ID(), r.Score())
		}
		got = append(got, r.ID())
	}
	if fmt.Sprint(got) != "[a b c]" {
		t.Errorf("ids = %v, want [a b c] in store order", got)
	}
}

func TestQuery_CustomMinScore(t *testing.T) {
	st := newMemStore()
	st.collections["docs"] = collection.Reconstruct("docs", testDims, domain.DistanceCosine, testModel, 1)
	st.searchFn = func(context.Context, string, []float32, int) ([]point.Hit, error) {
		return []point.Hit{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.5}}, nil
	}
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}}).WithMinScore(0.4)

	results, err := e.Query(context.Background(), "q", "docs", 10)
	if err != nil || len(results) != 2 {
		t.Fatalf("Query() = %d results, %v; want 2", len(results), err)
	}
}

func TestQuery_NaNScoreNeverPasses(t *testing.T) {
	st := newMemStore()
	st.collections["docs"] = collection.Reconstruct("docs", testDims, domain.DistanceCosine, testModel, 1)
	st.searchFn = func(context.Context, string, []float32, int) ([]point.Hit, error) {
		return []point.Hit{{ID: "nan", Score: math.NaN()}, {ID: "a", Score: 0.9}}, nil
	}
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}})

	results, err := e.Query(context.Background(), "q", "docs", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].ID() != "a" {
		t.Fatalf("results = %v, want only a", results)
	}
}

func TestQuery_ZeroVectorRejected(t *testing.T) {
	st := newMemStore()
	st.collections["docs"] = collection.Reconstruct("docs", testDims, domain.DistanceCosine, testModel, 1)
	st.searchFn = func(context.Context, string, []float32, int) ([]point.Hit, error) {
		t.Error("a zero vector must not reach the store")
		return nil, nil
	}
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{0, 0, 0}})

	_, err := e.Query(context.Background(), "!!!", "docs", 5)
	if !errors.Is(err, domain.ErrInvalidArgument) || !errors.Is(err, domain.ErrQuery) {
		t.Fatalf("expected invalid query argument, got %v", err)
	}
}

func TestIngest_NonFiniteVectorRejected(t *testing.T) {
	for name, vec := range map[string][]float32{
		"zero": {0, 0, 0},
		"nan":  {float32(math.NaN()), 1, 0},
		"inf":  {float32(math.Inf(1)), 1, 0},
	} {
		t.Run(name, func(t *testing.T) {
			st := newMemStore()
			e := newTestEngine(t, st, &fixedEmbedder{fallback: vec})

			_, err := e.Ingest(context.Background(), IngestRequest{Content: "text", Source: "s", Collection: "docs"})
			if !errors.Is(err, domain.ErrIngestion) {
				t.Fatalf("expected ErrIngestion, got %v", err)
			}
			if st.pointCount("docs") != 0 {
				t.Error("rejected vector must not be stored")
			}
		})
	}
}

func TestQuery_EmptyState(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}})
	ctx := context.Background()

	results, err := e.Query(ctx, "anything", "never-created", 10)
	if err != nil || len(results) != 0 {
		t.Fatalf("absent collection: %v, %v", results, err)
	}

	if _, err := e.EnsureCollection(ctx, "empty", testModel); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	results, err = e.Query(ctx, "anything", "empty", 10)
	if err != nil || len(results) != 0 {
		t.Fatalf("empty collection: %v, %v", results, err)
	}
	if results == nil {
		t.Error("expected a non-nil empty list")
	}
}

func TestQuery_Isolation(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}})
	ctx := context.Background()

	id, err := e.Ingest(ctx, IngestRequest{Content: "in a", Collection: "A"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := e.EnsureCollection(ctx, "B", testModel); err != nil {
		t.Fatalf("ensure B: %v", err)
	}

	results, err := e.Query(ctx, "in a", "B", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, r := range results {
		if r.ID() == id {
			t.Fatal("point from A leaked into B")
		}
	}
}

func TestQuery_NonPositiveLimit(t *testing.T) {
	st := newMemStore()
	emb := &fixedEmbedder{fallback: []float32{1, 0, 0}}
	e := newTestEngine(t, st, emb)

	for _, limit := range []int{0, -5} {
		results, err := e.Query(context.Background(), "q", "docs", limit)
		if err != nil || len(results) != 0 {
			t.Errorf("limit %d: %v, %v", limit, results, err)
		}
	}
	if emb.calls.Load() != 0 {
		t.Error("no embedding should happen for a non-positive limit")
	}
}

func TestQuery_LimitClamped(t *testing.T) {
	st := newMemStore()
	st.collections["docs"] = collection.Reconstruct("docs", testDims, domain.DistanceCosine, testModel, 1)
	var requested int
	st.searchFn = func(_ context.Context, _ string, _ []float32, limit int) ([]point.Hit, error) {
		requested = limit
		return nil, nil
	}
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}}).WithMaxLimit(20)

	if _, err := e.Query(context.Background(), "q", "docs", 1000); err != nil {
		t.Fatalf("query: %v", err)
	}
	if requested != 20 {
		t.Errorf("requested limit = %d, want 20", requested)
	}
}

func TestQuery_EmptyText(t *testing.T) {
	e := newTestEngine(t, newMemStore(), &fixedEmbedder{})
	_, err := e.Query(context.Background(), "", "docs", 5)
	if !errors.Is(err, domain.ErrQuery) || !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected query/invalid argument, got %v", err)
	}
}

func TestQuery_PropagatesFailures(t *testing.T) {
	st := newMemStore()
	st.collections["docs"] = collection.Reconstruct("docs", testDims, domain.DistanceCosine, testModel, 1)
	st.searchFn = func(context.Context, string, []float32, int) ([]point.Hit, error) {
		return nil, domain.Connection("search", errors.New("refused"))
	}
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}})

	_, err := e.Query(context.Background(), "q", "docs", 5)
	if !errors.Is(err, domain.ErrQuery) || !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("expected query/connection error, got %v", err)
	}

	e2 := newTestEngine(t, st, &fixedEmbedder{err: errProvider})
	st.searchFn = nil
	_, err = e2.Query(context.Background(), "q", "docs", 5)
	if !errors.Is(err, domain.ErrQuery) || !errors.Is(err, errProvider) {
		t.Fatalf("expected query error wrapping provider failure, got %v", err)
	}
}

func TestQuery_ModelMismatch(t *testing.T) {
	st := newMemStore()
	st.collections["docs"] = collection.Reconstruct("docs", testDims, domain.DistanceCosine, "other", 1)
	emb := &fixedEmbedder{fallback: []float32{1, 0, 0}}
	e := newTestEngine(t, st, emb)

	_, err := e.Query(context.Background(), "q", "docs", 5)
	if !errors.Is(err, domain.ErrModelMismatch) {
		t.Fatalf("expected ErrModelMismatch, got %v", err)
	}
	if emb.calls.Load() != 0 {
		t.Error("mismatched collection must be rejected before embedding")
	}
}

func TestQuery_UnrecordedModelAccepted(t *testing.T) {
	st := newMemStore()
	st.collections["docs"] = collection.Reconstruct("docs", testDims, domain.DistanceCosine, "", 1)
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}})

	if _, err := e.Query(context.Background(), "q", "docs", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	created []string
	ingest  int
	queries []int
}

func (r *recordingObserver) CollectionCreated(c string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, c)
}

func (r *recordingObserver) Ingested(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingest++
}

func (r *recordingObserver) Queried(_ string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, n)
}

func TestObserver(t *testing.T) {
	st := newMemStore()
	obs := &recordingObserver{}
	e := newTestEngine(t, st, &fixedEmbedder{fallback: []float32{1, 0, 0}}).WithObserver(obs)
	ctx := context.Background()

	if _, err := e.Ingest(ctx, IngestRequest{Content: "x", Collection: "docs"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := e.Query(ctx, "x", "docs", 3); err != nil {
		t.Fatalf("query: %v", err)
	}

	if len(obs.created) != 1 || obs.ingest != 1 || len(obs.queries) != 1 || obs.queries[0] != 1 {
		t.Errorf("observer = %+v", obs)
	}
}
