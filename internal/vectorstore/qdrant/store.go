// Package qdrant is a minimal Qdrant REST client implementing the vector store contract.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/collection"
	"github.com/kailas-cloud/ragdex/internal/domain/point"
)

const defaultTimeout = 15 * time.Second

// Config holds connection parameters for Qdrant.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Store implements retrieval.Store over the Qdrant REST API.
// Qdrant records size and distance per collection; the model id travels in each point payload.
type Store struct {
	url    string
	apiKey string
	client *http.Client
}

// New creates a Qdrant store.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Store{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// statusError is a non-2xx response from Qdrant.
type statusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s: %d %s", e.Method, e.Path, e.Status, e.Body)
}

// failure categorises a failed call. A 4xx means Qdrant understood and refused the
// request, which retrying against a healthy server will not fix.
func failure(op string, err error) error {
	var se *statusError
	if !errors.As(err, &se) || se.Status < 400 || se.Status >= 500 {
		return domain.Connection(op, err)
	}
	if se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden {
		return domain.Configuration(err, "%s: credentials rejected", op)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrInvalidArgument, err)
}

func (s *Store) collectionPath(name string, rest ...string) string {
	return "/collections/" + url.PathEscape(name) + strings.Join(rest, "")
}

// Ping checks the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.doJSON(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return failure("qdrant ping", err)
	}
	return nil
}

// Exists reports whether the collection is present.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var resp struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodGet, s.collectionPath(name, "/exists"), nil, &resp); err != nil {
		return false, failure("qdrant exists", err)
	}
	return resp.Result.Exists, nil
}

// Describe reads vector size and distance from the collection info.
func (s *Store) Describe(ctx context.Context, name string) (collection.Collection, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodGet, s.collectionPath(name), nil, &resp); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return collection.Collection{}, fmt.Errorf("collection %q: %w", name, domain.ErrCollectionNotFound)
		}
		return collection.Collection{}, failure("qdrant describe", err)
	}

	vectors := resp.Result.Config.Params.Vectors
	if vectors.Size <= 0 {
		return collection.Collection{}, fmt.Errorf("qdrant collection %q has no single unnamed vector config", name)
	}
	return collection.Reconstruct(name, vectors.Size, strings.ToLower(vectors.Distance), "", 0), nil
}

// Create creates a cosine collection. Qdrant rejects duplicates with 409 (or 400 on older versions).
func (s *Store) Create(ctx context.Context, col collection.Collection) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     col.Dimensions(),
			"distance": "Cosine",
		},
	}
	if err := s.doJSON(ctx, http.MethodPut, s.collectionPath(col.Name()), body, nil); err != nil {
		var se *statusError
		if errors.As(err, &se) &&
			(se.Status == http.StatusConflict || strings.Contains(strings.ToLower(se.Body), "already exists")) {
			return fmt.Errorf("collection %q: %w", col.Name(), domain.ErrCollectionExists)
		}
		return failure("qdrant create", err)
	}
	return nil
}

// Upsert writes one point and waits for it to be applied.
func (s *Store) Upsert(ctx context.Context, collectionName string, p point.Point) error {
	body := map[string]any{
		"points": []map[string]any{{
			"id":      p.ID(),
			"vector":  p.Vector(),
			"payload": p.Payload().Map(),
		}},
	}
	path := s.collectionPath(collectionName, "/points?wait=true")
	if err := s.doJSON(ctx, http.MethodPut, path, body, nil); err != nil {
		return failure("qdrant upsert", err)
	}
	return nil
}

// Search returns the nearest points, nearest first.
func (s *Store) Search(ctx context.Context, collectionName string, vector []float32, limit int) ([]point.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any               `json:"id"`
			Score   float64           `json:"score"`
			Payload map[string]string `json:"payload"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath(collectionName, "/points/search"), req, &resp); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, fmt.Errorf("collection %q: %w", collectionName, domain.ErrCollectionNotFound)
		}
		return nil, failure("qdrant search", err)
	}

	hits := make([]point.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, point.Hit{
			ID:      fmt.Sprint(r.ID),
			Score:   r.Score,
			Payload: point.PayloadFromMap(r.Payload),
		})
	}
	return hits, nil
}

// Count returns the exact number of points.
func (s *Store) Count(ctx context.Context, collectionName string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	body := map[string]any{"exact": true}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath(collectionName, "/points/count"), body, &resp); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return 0, fmt.Errorf("collection %q: %w", collectionName, domain.ErrCollectionNotFound)
		}
		return 0, failure("qdrant count", err)
	}
	return resp.Result.Count, nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Store) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return nil
}
