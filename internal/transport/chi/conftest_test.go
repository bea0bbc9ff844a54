package chi

import (
	"context"
	"iter"

	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
)

type mockEngine struct {
	ingestFn func(ctx context.Context, req retrieval.IngestRequest) (string, error)
	queryFn  func(ctx context.Context, text, collection string, limit int) ([]result.Result, error)
}

func (m *mockEngine) Ingest(ctx context.Context, req retrieval.IngestRequest) (string, error) {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, req)
	}
	return "id-1", nil
}

func (m *mockEngine) Query(ctx context.Context, text, collection string, limit int) ([]result.Result, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, text, collection, limit)
	}
	return nil, nil
}

type mockChat struct {
	fragments []string
	errAt     int
	err       error
}

func (m *mockChat) Stream(_ context.Context, _ string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, f := range m.fragments {
			if m.err != nil && i == m.errAt {
				yield("", m.err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
		if m.err != nil && m.errAt >= len(m.fragments) {
			yield("", m.err)
		}
	}
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

func newTestServer(engine *mockEngine, chat chatStreamer) *Server {
	return NewServer(engine, chat, &mockHealth{report: healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{healthuc.CheckVectorStore: healthuc.CheckOK},
	}}, nil)
}
