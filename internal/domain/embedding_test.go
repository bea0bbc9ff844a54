package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	got    string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.got = text
	return s.result, s.err
}

type healthyStub struct {
	stubEmbedder
	healthErr error
}

func (h *healthyStub) HealthCheck(_ context.Context) error { return h.healthErr }

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	emb := NewInstructionEmbedder(inner, "Represent this sentence for searching relevant passages: ")

	result, err := emb.Embed(context.Background(), "capital of France")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "Represent this sentence for searching relevant passages: capital of France" {
		t.Errorf("expected prepended text, got %q", inner.got)
	}
	if len(result.Embedding) != 3 {
		t.Errorf("expected 3-element vector, got %d", len(result.Embedding))
	}
}

func TestInstructionEmbedder_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	emb := NewInstructionEmbedder(&stubEmbedder{err: innerErr}, "q: ")

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestInstructionEmbedder_HealthCheck(t *testing.T) {
	unreachable := errors.New("unreachable")
	emb := NewInstructionEmbedder(&healthyStub{healthErr: unreachable}, "q: ")
	if err := emb.HealthCheck(context.Background()); !errors.Is(err, unreachable) {
		t.Errorf("expected health check error, got %v", err)
	}

	plain := NewInstructionEmbedder(&stubEmbedder{}, "q: ")
	if err := plain.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected nil for embedder without health check, got %v", err)
	}
}

func TestEmbeddingUsage_NilSafe(t *testing.T) {
	var u *EmbeddingUsage
	u.AddTokens(10)
	if n, used := u.Snapshot(); n != 0 || used {
		t.Errorf("nil usage snapshot = (%d, %v)", n, used)
	}

	ctx, usage := NewContextWithUsage(context.Background())
	UsageFromContext(ctx).AddTokens(7)
	UsageFromContext(ctx).AddTokens(0)
	if n, used := usage.Snapshot(); n != 7 || !used {
		t.Errorf("usage snapshot = (%d, %v), want (7, true)", n, used)
	}
	if UsageFromContext(context.Background()) != nil {
		t.Error("expected nil usage for bare context")
	}
}

func TestInstructionEmbedder_EmptyInstruction(t *testing.T) {
	inner := &stubEmbedder{}
	if _, err := NewInstructionEmbedder(inner, "").Embed(context.Background(), "as is"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "as is" {
		t.Errorf("inner got %q", inner.got)
	}
}

func TestEmbedderFunc(t *testing.T) {
	var e Embedder = EmbedderFunc(func(_ context.Context, text string) (EmbeddingResult, error) {
		return EmbeddingResult{Embedding: make([]float32, len(text))}, nil
	})
	res, err := e.Embed(context.Background(), "abcd")
	if err != nil || len(res.Embedding) != 4 {
		t.Errorf("EmbedderFunc = %v, %v", res.Embedding, err)
	}
}

func TestEmbeddingUsage_Concurrent(t *testing.T) {
	ctx, usage := NewContextWithUsage(context.Background())

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			UsageFromContext(ctx).AddTokens(2)
		}()
	}
	wg.Wait()

	if n, _ := usage.Snapshot(); n != 100 {
		t.Errorf("total tokens = %d, want 100", n)
	}
}
