package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

type fakeStream struct {
	fragments []string
	failAfter error
	closed    bool
}

func (f *fakeStream) Recv() (string, error) {
	if len(f.fragments) == 0 {
		if f.failAfter != nil {
			return "", f.failAfter
		}
		return "", io.EOF
	}
	next := f.fragments[0]
	f.fragments = f.fragments[1:]
	return next, nil
}

func (f *fakeStream) Close() { f.closed = true }

type fakeCompleter struct {
	openFn func(ctx context.Context, system, user string) (Stream, error)
	opened int
}

func (f *fakeCompleter) StreamCompletion(ctx context.Context, system, user string) (Stream, error) {
	f.opened++
	return f.openFn(ctx, system, user)
}

func collect(t *testing.T, seq func(func(string, error) bool)) ([]string, error) {
	t.Helper()
	var out []string
	var lastErr error
	seq(func(s string, err error) bool {
		if err != nil {
			lastErr = err
			return false
		}
		out = append(out, s)
		return true
	})
	return out, lastErr
}

func TestStream_YieldsFragmentsInOrder(t *testing.T) {
	stream := &fakeStream{fragments: []string{"Hel", "lo", "!"}}
	var gotSystem, gotUser string
	c := &fakeCompleter{openFn: func(_ context.Context, system, user string) (Stream, error) {
		gotSystem, gotUser = system, user
		return stream, nil
	}}
	svc := New(c, "", zap.NewNop())

	got, err := collect(t, svc.Stream(context.Background(), "hi there"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "") != "Hello!" || len(got) != 3 {
		t.Errorf("fragments = %q", got)
	}
	if gotSystem != DefaultSystemPrompt {
		t.Errorf("system prompt = %q", gotSystem)
	}
	if gotUser != "hi there" {
		t.Errorf("user message = %q", gotUser)
	}
	if !stream.closed {
		t.Error("stream must be closed after completion")
	}
}

func TestStream_IsLazy(t *testing.T) {
	c := &fakeCompleter{openFn: func(context.Context, string, string) (Stream, error) {
		return &fakeStream{}, nil
	}}
	svc := New(c, "custom", zap.NewNop())

	seq := svc.Stream(context.Background(), "q")
	if c.opened != 0 {
		t.Fatal("provider called before iteration")
	}
	if _, err := collect(t, seq); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.opened != 1 {
		t.Errorf("opened = %d, want 1", c.opened)
	}
}

func TestStream_EmptyQuery(t *testing.T) {
	c := &fakeCompleter{openFn: func(context.Context, string, string) (Stream, error) {
		t.Fatal("provider must not be called for an empty query")
		return nil, nil
	}}
	svc := New(c, "", nil)

	_, err := collect(t, svc.Stream(context.Background(), "   "))
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestStream_OpenFailure(t *testing.T) {
	c := &fakeCompleter{openFn: func(context.Context, string, string) (Stream, error) {
		return nil, domain.ErrChatProviderError
	}}
	svc := New(c, "", zap.NewNop())

	got, err := collect(t, svc.Stream(context.Background(), "q"))
	if !errors.Is(err, domain.ErrChatProviderError) {
		t.Errorf("expected ErrChatProviderError, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no fragments, got %q", got)
	}
}

func TestStream_MidStreamFailureTerminates(t *testing.T) {
	stream := &fakeStream{fragments: []string{"partial"}, failAfter: errors.New("connection reset")}
	c := &fakeCompleter{openFn: func(context.Context, string, string) (Stream, error) {
		return stream, nil
	}}
	svc := New(c, "", zap.NewNop())

	var fragments []string
	errs := 0
	for s, err := range svc.Stream(context.Background(), "q") {
		if err != nil {
			errs++
			continue
		}
		fragments = append(fragments, s)
	}
	if len(fragments) != 1 || fragments[0] != "partial" {
		t.Errorf("fragments = %q", fragments)
	}
	if errs != 1 {
		t.Errorf("errors yielded = %d, want exactly 1", errs)
	}
	if !stream.closed {
		t.Error("stream must be closed after failure")
	}
}

func TestStream_EarlyBreakCloses(t *testing.T) {
	stream := &fakeStream{fragments: []string{"a", "b", "c"}}
	c := &fakeCompleter{openFn: func(context.Context, string, string) (Stream, error) {
		return stream, nil
	}}
	svc := New(c, "", zap.NewNop())

	for range svc.Stream(context.Background(), "q") {
		break
	}
	if !stream.closed {
		t.Error("stream must be closed when the consumer stops early")
	}
}
