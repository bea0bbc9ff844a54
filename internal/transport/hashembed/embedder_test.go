package hashembed

import (
	"context"
	"errors"
	"math"
	"testing"
)

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

func TestEmbed_Deterministic(t *testing.T) {
	e := New(64)
	a, err := e.Embed(context.Background(), "The quick brown fox")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := e.Embed(context.Background(), "the QUICK brown, fox!")
	if len(a.Embedding) != 64 {
		t.Fatalf("len = %d, want 64", len(a.Embedding))
	}
	for i := range a.Embedding {
		if a.Embedding[i] != b.Embedding[i] {
			t.Fatalf("vectors differ at %d: case and punctuation must not matter", i)
		}
	}
	if a.TotalTokens != 4 {
		t.Errorf("TotalTokens = %d, want 4", a.TotalTokens)
	}
}

func TestEmbed_UnitLength(t *testing.T) {
	res, _ := New(32).Embed(context.Background(), "alpha beta gamma")
	var norm float64
	for _, v := range res.Embedding {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %v, want 1", norm)
	}
}

func TestEmbed_SimilarityTracksOverlap(t *testing.T) {
	e := New(DefaultDimensions)
	ctx := context.Background()
	doc, _ := e.Embed(ctx, "redis vector search with hnsw index")
	same, _ := e.Embed(ctx, "redis vector search with hnsw index")
	near, _ := e.Embed(ctx, "vector search in redis")
	far, _ := e.Embed(ctx, "banana bread recipe")

	if s := cosine(doc.Embedding, same.Embedding); math.Abs(s-1) > 1e-5 {
		t.Errorf("identical text similarity = %v, want 1", s)
	}
	if cosine(doc.Embedding, near.Embedding) <= cosine(doc.Embedding, far.Embedding) {
		t.Error("overlapping text must score above unrelated text")
	}
}

func TestEmbed_EmptyText(t *testing.T) {
	res, err := New(8).Embed(context.Background(), "  ...  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, v := range res.Embedding {
		if v != 0 {
			t.Fatalf("expected zero vector, got %v", res.Embedding)
		}
	}
}

func TestEmbed_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(8).Embed(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestModel(t *testing.T) {
	e := New(0)
	if e.Dimensions() != DefaultDimensions {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
	if e.Model() != "hash-256" {
		t.Errorf("Model() = %q", e.Model())
	}
}
