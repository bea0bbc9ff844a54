// Package chi is the HTTP facade of the retrieval engine and the chat relay.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
)

const (
	defaultQueryLimit = 10
	maxBodyBytes      = 1 << 20
	addedMessage      = "Document added successfully."
)

// retriever is the consumer interface for the retrieval engine.
type retriever interface {
	Ingest(ctx context.Context, req retrieval.IngestRequest) (string, error)
	Query(ctx context.Context, text, collection string, limit int) ([]result.Result, error)
}

// chatStreamer is the consumer interface for the chat relay.
type chatStreamer interface {
	Stream(ctx context.Context, query string) iter.Seq2[string, error]
}

// healthChecker is the consumer interface for health checks.
type healthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// AddEmbeddingRequest is the body of POST /add_embedding.
type AddEmbeddingRequest struct {
	Content        string `json:"content"`
	Title          string `json:"title,omitempty"`
	URL            string `json:"url"`
	CollectionName string `json:"collection_name,omitempty"`
}

// AddEmbeddingResponse is the success body of POST /add_embedding.
type AddEmbeddingResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query          string `json:"query"`
	CollectionName string `json:"collection_name,omitempty"`
	Limit          *int   `json:"limit,omitempty"`
}

// QueryResult is one hit in QueryResponse.
type QueryResult struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// QueryResponse is the body of POST /query.
type QueryResponse struct {
	Results []QueryResult `json:"results"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query string `json:"query"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Server serves the HTTP API.
type Server struct {
	engine        retriever
	chat          chatStreamer
	health        healthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler

	defaultLimit int
	degradeQuery bool
	corsOrigins  []string
}

// NewServer creates an HTTP API server. chat may be nil when no chat model is configured.
func NewServer(engine retriever, chat chatStreamer, health healthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:        engine,
		chat:          chat,
		health:        health,
		logger:        logger,
		errorHandlers: defaultErrorHandlers,
		defaultLimit:  defaultQueryLimit,
	}
}

// WithDefaultLimit sets the limit used when /query omits one.
func (s *Server) WithDefaultLimit(limit int) *Server {
	if limit > 0 {
		s.defaultLimit = limit
	}
	return s
}

// WithQueryDegradation answers failed queries with an empty result list instead of an error.
// Invalid requests are still rejected.
func (s *Server) WithQueryDegradation(enabled bool) *Server {
	s.degradeQuery = enabled
	return s
}

// WithCORS allows browser clients from the given origins.
func (s *Server) WithCORS(origins []string) *Server {
	s.corsOrigins = origins
	return s
}

// Handler builds the chi router with the middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(corsMiddleware(s.corsOrigins))
	r.Use(metrics.Middleware())

	r.Post("/add_embedding", s.AddEmbedding)
	r.Post("/query", s.Query)
	r.Post("/chat", s.Chat)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// AddEmbedding handles POST /add_embedding.
func (s *Server) AddEmbedding(w http.ResponseWriter, r *http.Request) {
	var req AddEmbeddingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, usage := domain.NewContextWithUsage(logpkg.With(r.Context(), zap.String("collection", req.CollectionName)))
	id, err := s.engine.Ingest(ctx, retrieval.IngestRequest{
		Content:    req.Content,
		Source:     req.URL,
		Collection: req.CollectionName,
		Title:      req.Title,
	})
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, AddEmbeddingResponse{Message: addedMessage, ID: id})
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	limit := s.defaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	ctx, usage := domain.NewContextWithUsage(logpkg.With(r.Context(), zap.String("collection", req.CollectionName)))
	results, err := s.engine.Query(ctx, req.Query, req.CollectionName, limit)
	if err != nil {
		if s.degradeQuery && !errors.Is(err, domain.ErrInvalidArgument) {
			logpkg.FromContext(ctx).Error("Query failed, answering with no results", zap.Error(err))
			metrics.QueryDegradedTotal.WithLabelValues("http").Inc()
			writeJSON(w, http.StatusOK, QueryResponse{Results: []QueryResult{}})
			return
		}
		s.handleDomainError(ctx, w, err)
		return
	}

	items := make([]QueryResult, len(results))
	for i := range results {
		items[i] = QueryResult{
			ID:      results[i].ID(),
			Content: results[i].Content(),
			Source:  results[i].Source(),
			Score:   results[i].Score(),
		}
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, QueryResponse{Results: items})
}

// Chat handles POST /chat. Fragments are flushed as they arrive.
// A failure before the first fragment is answered with a JSON error;
// a later failure ends the stream.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "chat is not configured")
		return
	}

	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	log := logpkg.FromContext(r.Context())
	rc := http.NewResponseController(w)
	started := false

	for fragment, err := range s.chat.Stream(r.Context(), req.Query) {
		if err != nil {
			if !started {
				s.handleDomainError(r.Context(), w, err)
				return
			}
			log.Error("Chat stream terminated", zap.Error(err))
			return
		}
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := fmt.Fprint(w, fragment); err != nil {
			log.Warn("Chat client went away", zap.Error(err))
			return
		}
		_ = rc.Flush()
	}

	if !started {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

const embeddingTokensHeader = "X-Embedding-Tokens"

// setEmbeddingHeaders reports the tokens spent on embedding. Absent when nothing was embedded.
func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if tokens, used := usage.Snapshot(); used {
		w.Header().Set(embeddingTokensHeader, strconv.Itoa(tokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logpkg.FromContext(ctx)
	log.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
