// Package embcache caches embedding vectors in a key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

const (
	keySpace     = domain.KeyPrefix + "emb:"
	entryVersion = 1
	headerSize   = 3 // version byte + uint16 width

	// flightTimeout bounds a provider call shared by concurrent misses.
	flightTimeout = time.Minute
)

// Cache outcomes, used as the "result" label.
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

var errCorruptEntry = errors.New("corrupt embedding cache entry")

// store is the consumer interface for the embedding cache.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder serves repeated texts from a key-value store.
// Keys are scoped by model, so switching models never serves a vector of the wrong width.
// Concurrent misses for the same text share one provider call.
type CachedEmbedder struct {
	inner   domain.Embedder
	store   store
	model   string
	ttl     time.Duration
	flights singleflight.Group
	outcome *prometheus.CounterVec
	logger  *zap.Logger
}

// New creates a caching decorator. outcome is a counter vec labelled "result"
// (hit, miss, error) and may be nil.
func New(
	inner domain.Embedder,
	s store,
	model string,
	outcome *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:   inner,
		store:   s,
		model:   model,
		outcome: outcome,
		logger:  logger,
	}
}

// WithTTL expires cached vectors after ttl. Zero keeps them forever.
func (c *CachedEmbedder) WithTTL(ttl time.Duration) *CachedEmbedder {
	c.ttl = ttl
	return c
}

// Embed returns the cached vector for text, or embeds and stores it.
// A hit reports zero tokens. Store failures degrade to a provider call.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)

	if vec, ok := c.lookup(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	// Waiters share one provider call; it runs detached so none of them can cancel it for the rest.
	ch := c.flights.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()
		res, err := c.inner.Embed(shared, text)
		if err != nil {
			return nil, err //nolint:wrapcheck // wrapped below
		}
		c.remember(shared, key, res.Embedding)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", r.Err)
		}
		return r.Val.(domain.EmbeddingResult), nil //nolint:forcetypeassert // only type stored
	}
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keySpace + c.model + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		c.count(resultMiss)
		return nil, false
	case err != nil:
		c.count(resultError)
		c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	vec, err := decodeEntry(data)
	if err != nil {
		c.count(resultError)
		c.logger.Warn("Dropping unreadable embedding cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	c.count(resultHit)
	return vec, true
}

func (c *CachedEmbedder) remember(ctx context.Context, key string, vec []float32) {
	data, err := encodeEntry(vec)
	if err != nil {
		c.logger.Warn("Embedding not cacheable", zap.String("key", key), zap.Error(err))
		return
	}
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, data, c.ttl)
	} else {
		err = c.store.Set(ctx, key, data)
	}
	if err != nil {
		c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedEmbedder) count(result string) {
	if c.outcome != nil {
		c.outcome.WithLabelValues(result).Inc()
	}
}

// encodeEntry lays out a version byte, the little-endian uint16 width,
// then the float32 components.
func encodeEntry(vec []float32) ([]byte, error) {
	if len(vec) == 0 || len(vec) > math.MaxUint16 {
		return nil, fmt.Errorf("width %d out of range", len(vec))
	}
	buf := make([]byte, 0, headerSize+4*len(vec))
	buf = append(buf, entryVersion)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(vec)))
	for _, f := range vec {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf, nil
}

func decodeEntry(data []byte) ([]float32, error) {
	if len(data) < headerSize || data[0] != entryVersion {
		return nil, errCorruptEntry
	}
	width := int(binary.LittleEndian.Uint16(data[1:headerSize]))
	body := data[headerSize:]
	if width == 0 || len(body) != 4*width {
		return nil, fmt.Errorf("%w: width %d, %d payload bytes", errCorruptEntry, width, len(body))
	}
	vec := make([]float32, width)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[4*i:]))
	}
	return vec, nil
}
