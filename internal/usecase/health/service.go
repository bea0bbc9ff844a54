// Package health aggregates vector store and embedding provider checks.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the store works but the embedding provider does not.
	Degraded Status = "degraded"
	// Unhealthy indicates the vector store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Check names reported in Report.Checks.
const (
	CheckVectorStore = "vector_store"
	CheckEmbedding   = "embedding"
)

const defaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a Service. embedding can be nil.
func New(store StorePinger, embedding EmbeddingChecker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, embedding: embedding, timeout: defaultCheckTimeout, logger: logger.Named("health")}
}

// WithTimeout bounds every individual check.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check checks all components concurrently, so a report takes at most one check timeout.
func (s *Service) Check(ctx context.Context) Report {
	var storeResult, embeddingResult CheckResult

	var g errgroup.Group
	g.Go(func() error {
		storeResult = s.check(ctx, CheckVectorStore, s.store.Ping)
		return nil
	})
	if s.embedding != nil {
		g.Go(func() error {
			embeddingResult = s.check(ctx, CheckEmbedding, s.embedding.HealthCheck)
			return nil
		})
	}
	_ = g.Wait()

	checks := map[string]CheckResult{CheckVectorStore: storeResult}
	if s.embedding != nil {
		checks[CheckEmbedding] = embeddingResult
	}

	status := Healthy
	switch {
	case storeResult == CheckError:
		status = Unhealthy
	case embeddingResult == CheckError:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}

func (s *Service) check(ctx context.Context, name string, fn func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		s.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
		return CheckError
	}
	return CheckOK
}
