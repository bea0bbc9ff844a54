// Package embedding holds the provider-independent embedding decorators and the model catalog.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

const defaultSlowThreshold = 2 * time.Second

// InstrumentedEmbedder is the outermost embedder decorator: it logs every call
// and flags slow ones. Provider metrics are recorded below it, by the transport.
type InstrumentedEmbedder struct {
	inner  domain.Embedder
	fields []zap.Field
	slow   time.Duration
	logger *zap.Logger
}

// NewInstrumentedEmbedder wraps inner. provider and model only label log lines.
func NewInstrumentedEmbedder(inner domain.Embedder, provider, model string, logger *zap.Logger) *InstrumentedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:  inner,
		fields: []zap.Field{zap.String("provider", provider), zap.String("model", model)},
		slow:   defaultSlowThreshold,
		logger: logger,
	}
}

// WithSlowThreshold sets the latency above which a successful call is logged at warn level.
func (p *InstrumentedEmbedder) WithSlowThreshold(d time.Duration) *InstrumentedEmbedder {
	if d > 0 {
		p.slow = d
	}
	return p
}

// Embed delegates to the inner embedder.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	elapsed := time.Since(start)

	log := p.logger.With(p.fields...).With(zap.Duration("duration", elapsed), zap.Int("chars", len(text)))
	if err != nil {
		log.Error("Embedding request failed", zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	usage := []zap.Field{
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	}
	if elapsed >= p.slow {
		log.Warn("Slow embedding request", usage...)
	} else {
		log.Debug("Embedding request completed", usage...)
	}
	return result, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	hc, ok := p.inner.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health: %w", err)
	}
	return nil
}
