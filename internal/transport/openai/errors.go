package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// parseAPIError turns a go-openai failure into a readable error joined with sentinel.
// kind names the API ("embedding", "chat").
func parseAPIError(kind string, err error, sentinel error) error {
	if status, detail, ok := describe(err); ok {
		return fmt.Errorf("%s API error %d: %s: %w", kind, status, detail, sentinel)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s request: %w: %w", kind, sentinel, err)
	}
	return fmt.Errorf("%s request failed: %w", kind, sentinel)
}

// describe extracts the HTTP status and the most specific message the provider sent.
func describe(err error) (status int, detail string, ok bool) {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if d := bodyDetail(reqErr.Body); d != "" {
			return reqErr.HTTPStatusCode, d, true
		}
		return reqErr.HTTPStatusCode, string(reqErr.Body), true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message, true
	}
	return 0, "", false
}

// bodyDetail reads {"detail": "..."} bodies, the error shape of several OpenAI-compatible hosts.
func bodyDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	return parsed.Detail
}

// transient reports failures worth another attempt: rate limits and provider-side errors.
func transient(err error) bool {
	status, _, ok := describe(err)
	if !ok {
		return false
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
