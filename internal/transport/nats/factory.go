package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/kailas-cloud/ragdex/internal/domain"
	rdxendpoint "github.com/kailas-cloud/ragdex/internal/endpoint"
)

// requester is the consumer interface over *nats.Conn.
type requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// MakeEndpoints builds client endpoints that call a remote ragdex service under prefix.
func MakeEndpoints(nc requester, prefix string) rdxendpoint.EndpointSet {
	return rdxendpoint.EndpointSet{
		Ingest: IngestEndpoint(nc, prefix+".add_embedding"),
		Query:  QueryEndpoint(nc, prefix+".query"),
	}
}

// IngestEndpoint calls add_embedding on topic.
func IngestEndpoint(nc requester, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(rdxendpoint.IngestRequest)
		if !ok {
			return nil, rdxendpoint.ErrInvalidRequestType
		}

		var resp rdxendpoint.IngestResponse
		if err := call(ctx, nc, topic, &req, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	}
}

// QueryEndpoint calls query on topic.
func QueryEndpoint(nc requester, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(rdxendpoint.QueryRequest)
		if !ok {
			return nil, rdxendpoint.ErrInvalidRequestType
		}

		var resp rdxendpoint.QueryResponse
		if err := call(ctx, nc, topic, &req, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	}
}

func call(ctx context.Context, nc requester, topic string, req, resp any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nats.DefaultTimeout)
		defer cancel()
	}

	msg, err := nc.RequestWithContext(ctx, topic, data)
	if err != nil {
		return domain.Connection("nats request "+topic, err)
	}

	if err := Error(msg); err != nil {
		return err
	}

	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Error decodes a micro service error reply. It returns nil for a successful reply.
func Error(msg *nats.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	code := msg.Header.Get(micro.ErrorCodeHeader)
	if code == "" {
		return nil
	}

	description := msg.Header.Get(micro.ErrorHeader)
	if description == "" {
		description = "unknown error"
	}

	switch code {
	case CodeBadRequest:
		return fmt.Errorf("%s: %w", description, domain.ErrInvalidArgument)
	case CodeConfiguration:
		return fmt.Errorf("%s: %w", description, domain.ErrConfiguration)
	case CodeProvider:
		return fmt.Errorf("%s: %w", description, domain.ErrEmbeddingProviderError)
	case CodeUnavailable:
		return fmt.Errorf("%s: %w", description, domain.ErrConnection)
	case CodeTimeout:
		return fmt.Errorf("%s: %w", description, context.DeadlineExceeded)
	default:
		return errors.New(code + ":" + description)
	}
}
