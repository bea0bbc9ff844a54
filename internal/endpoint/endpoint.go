// Package endpoint exposes the retrieval engine as transport-agnostic go-kit endpoints.
package endpoint

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/kit/endpoint"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
)

// ErrInvalidRequestType signals an endpoint called with the wrong request value.
var ErrInvalidRequestType = errors.New("invalid request type")

// Service is the engine surface the endpoints drive.
type Service interface {
	Ingest(ctx context.Context, req retrieval.IngestRequest) (string, error)
	Query(ctx context.Context, text, collection string, limit int) ([]result.Result, error)
}

// EndpointSet groups the engine endpoints.
type EndpointSet struct {
	Ingest endpoint.Endpoint
	Query  endpoint.Endpoint
}

// IngestRequest adds one document.
type IngestRequest struct {
	Content        string `json:"content"`
	Title          string `json:"title,omitempty"`
	URL            string `json:"url"`
	CollectionName string `json:"collection_name,omitempty"`
}

// IngestResponse carries the id of the new point.
type IngestResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// QueryRequest searches one collection. A nil Limit selects the default.
type QueryRequest struct {
	Query          string `json:"query"`
	CollectionName string `json:"collection_name,omitempty"`
	Limit          *int   `json:"limit,omitempty"`
}

// QueryResult is one hit.
type QueryResult struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// QueryResponse lists hits in descending score order.
type QueryResponse struct {
	Results []QueryResult `json:"results"`
}

// MakeEndpoints builds the endpoint set for svc.
func MakeEndpoints(svc Service, defaultLimit int) EndpointSet {
	return EndpointSet{
		Ingest: IngestEndpoint(svc),
		Query:  QueryEndpoint(svc, defaultLimit),
	}
}

// IngestEndpoint adapts Service.Ingest.
func IngestEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(IngestRequest)
		if !ok {
			return nil, ErrInvalidRequestType
		}

		id, err := svc.Ingest(ctx, retrieval.IngestRequest{
			Content:    req.Content,
			Source:     req.URL,
			Collection: req.CollectionName,
			Title:      req.Title,
		})
		if err != nil {
			return nil, err //nolint:wrapcheck // transports map domain errors
		}

		return IngestResponse{Message: "Document added successfully.", ID: id}, nil
	}
}

// QueryEndpoint adapts Service.Query.
func QueryEndpoint(svc Service, defaultLimit int) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(QueryRequest)
		if !ok {
			return nil, ErrInvalidRequestType
		}

		limit := defaultLimit
		if req.Limit != nil {
			limit = *req.Limit
		}

		hits, err := svc.Query(ctx, req.Query, req.CollectionName, limit)
		if err != nil {
			return nil, err //nolint:wrapcheck // transports map domain errors
		}

		results := make([]QueryResult, len(hits))
		for i := range hits {
			results[i] = QueryResult{
				ID:      hits[i].ID(),
				Content: hits[i].Content(),
				Source:  hits[i].Source(),
				Score:   hits[i].Score(),
			}
		}
		return QueryResponse{Results: results}, nil
	}
}

// LoggingMiddleware logs every call of an endpoint.
func LoggingMiddleware(log *zap.Logger, action string) endpoint.Middleware {
	log = log.With(zap.String("action", action))

	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()

			resp, err := next(ctx, request)
			if err != nil {
				log.Error(err.Error(), zap.Duration("latency", time.Since(start)))
				return nil, err
			}

			log.Debug("endpoint completed", zap.Duration("latency", time.Since(start)))
			return resp, nil
		}
	}
}

// WithLogging wraps every endpoint of the set with LoggingMiddleware.
func (s EndpointSet) WithLogging(log *zap.Logger) EndpointSet {
	return EndpointSet{
		Ingest: LoggingMiddleware(log, "ingest")(s.Ingest),
		Query:  LoggingMiddleware(log, "query")(s.Query),
	}
}
