// Package chat relays a user message to a hosted model as a lazy fragment sequence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// DefaultSystemPrompt frames every conversation.
const DefaultSystemPrompt = "You are a friendly, thoughtful AI assistant. Be concise, helpful, and empathetic. " +
	"If you are unsure about something or lack information, say so clearly. " +
	"Do not provide clinical, legal, or financial advice."

// Service streams chat completions.
type Service struct {
	completer    Completer
	systemPrompt string
	logger       *zap.Logger
}

// New creates a chat service.
func New(completer Completer, systemPrompt string, logger *zap.Logger) *Service {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		completer:    completer,
		systemPrompt: systemPrompt,
		logger:       logger.Named("chat"),
	}
}

// Stream returns the reply to query as a sequence of text fragments.
// Nothing is sent to the provider until the sequence is ranged over. The sequence
// is finite and single-use: it ends after the last fragment, or after yielding
// exactly one error.
func (s *Service) Stream(ctx context.Context, query string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if strings.TrimSpace(query) == "" {
			yield("", fmt.Errorf("%w: query is empty", domain.ErrInvalidArgument))
			return
		}

		stream, err := s.completer.StreamCompletion(ctx, s.systemPrompt, query)
		if err != nil {
			yield("", fmt.Errorf("open chat stream: %w", err))
			return
		}
		defer stream.Close()

		fragments := 0
		for {
			fragment, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				s.logger.Debug("Chat stream completed", zap.Int("fragments", fragments))
				return
			}
			if err != nil {
				s.logger.Warn("Chat stream interrupted", zap.Int("fragments", fragments), zap.Error(err))
				yield("", fmt.Errorf("chat stream: %w", err))
				return
			}
			fragments++
			if !yield(fragment, nil) {
				return
			}
		}
	}
}
