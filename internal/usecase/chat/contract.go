package chat

import "context"

// Stream is one open completion. Recv returns io.EOF after the last fragment.
type Stream interface {
	Recv() (string, error)
	Close()
}

// Completer opens streamed completions against a hosted model.
type Completer interface {
	StreamCompletion(ctx context.Context, system, user string) (Stream, error)
}
