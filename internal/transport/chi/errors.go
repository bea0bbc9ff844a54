package chi

import (
	"context"
	"errors"
	"net/http"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest         = "bad_request"
	CodeValidationFailed   = "validation_failed"
	CodeConfiguration      = "configuration_error"
	CodeServiceUnavailable = "service_unavailable"
	CodeProviderError      = "provider_error"
	CodeTimeout            = "timeout"
	CodeInternalError      = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// defaultErrorHandlers is ordered: the first match wins, so the most specific
// categories come first.
var defaultErrorHandlers = []errorHandler{
	sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrConfiguration, http.StatusUnprocessableEntity, CodeConfiguration),
	sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderError),
	sentinelHandler(domain.ErrChatProviderError, http.StatusBadGateway, CodeProviderError),
	sentinelHandler(domain.ErrNotInitialized, http.StatusServiceUnavailable, CodeServiceUnavailable),
	sentinelHandler(domain.ErrConnection, http.StatusServiceUnavailable, CodeServiceUnavailable),
	sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidArgument,
		domain.ErrUnknownModel,
		domain.ErrModelMismatch,
		domain.ErrDimensionMismatch,
		domain.ErrConfiguration,
		domain.ErrEmbeddingProviderError,
		domain.ErrChatProviderError,
		domain.ErrEngineClosed,
		domain.ErrNotInitialized,
		domain.ErrConnection,
		context.DeadlineExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}
