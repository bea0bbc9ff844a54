// Package nats serves and consumes the retrieval endpoints over a NATS micro service.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go/micro"

	"github.com/kailas-cloud/ragdex/internal/domain"
	rdxendpoint "github.com/kailas-cloud/ragdex/internal/endpoint"
)

// Error codes carried in the micro.ErrorCodeHeader.
const (
	CodeBadRequest    = "400"
	CodeConfiguration = "422"
	CodeProvider      = "502"
	CodeUnavailable   = "503"
	CodeTimeout       = "504"
	CodeInternal      = "500"
)

// HandlerTimeout bounds one request served by the micro service.
var HandlerTimeout = 60 * time.Second

// AddEndpoints registers the retrieval endpoints on group.
func AddEndpoints(group micro.Group, endpoints rdxendpoint.EndpointSet) error {
	if err := group.AddEndpoint("add_embedding", IngestHandler(endpoints.Ingest)); err != nil {
		return err //nolint:wrapcheck // registration failure is fatal at startup
	}
	return group.AddEndpoint("query", QueryHandler(endpoints.Query)) //nolint:wrapcheck // same
}

// IngestHandler serves add_embedding.
func IngestHandler(ep endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req rdxendpoint.IngestRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			_ = r.Error(CodeBadRequest, err.Error(), nil)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), HandlerTimeout)
		defer cancel()

		resp, err := ep(ctx, req)
		if err != nil {
			_ = r.Error(errorCode(err), err.Error(), nil)
			return
		}

		_ = r.RespondJSON(resp)
	}
}

// QueryHandler serves query.
func QueryHandler(ep endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req rdxendpoint.QueryRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			_ = r.Error(CodeBadRequest, err.Error(), nil)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), HandlerTimeout)
		defer cancel()

		resp, err := ep(ctx, req)
		if err != nil {
			_ = r.Error(errorCode(err), err.Error(), nil)
			return
		}

		_ = r.RespondJSON(resp)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return CodeBadRequest
	case errors.Is(err, domain.ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		return CodeProvider
	case errors.Is(err, domain.ErrNotInitialized), errors.Is(err, domain.ErrConnection):
		return CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternal
	}
}
