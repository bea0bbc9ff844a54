package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragdex/internal/db"
)

const distanceField = "__vector_score"

// SearchKNN runs a KNN query with FT.SEARCH, nearest first.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.KNNResult, error) {
	switch {
	case q.Index == "":
		return nil, errors.New("index name is required")
	case len(q.Vector) == 0:
		return nil, errors.New("query vector is required")
	case q.K <= 0:
		return nil, errors.New("k must be positive")
	}

	field := q.VectorField
	if field == "" {
		field = db.DefaultVectorField
	}
	k := strconv.Itoa(q.K)

	args := []string{q.Index, fmt.Sprintf("*=>[KNN %s @%s $BLOB AS %s]", k, field, distanceField)}
	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)+1))
		args = append(args, q.ReturnFields...)
		args = append(args, distanceField)
	}
	// Without LIMIT the server truncates to 10 hits.
	args = append(args,
		"SORTBY", distanceField, "ASC",
		"LIMIT", "0", k,
		"PARAMS", "2", "BLOB", VectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	raw, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return parseKNNReply(raw)
}

// IndexCount returns the number of hashes in index.
func (s *Store) IndexCount(ctx context.Context, index string) (int, error) {
	cmd := s.b().Arbitrary("FT.SEARCH").Args(index, "*", "LIMIT", "0", "0").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return 0, db.ErrIndexNotFound
		}
		return 0, &db.Error{Op: db.OpSearch, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// parseKNNReply reads [total, key1, [field, value, ...], key2, ...].
func parseKNNReply(raw []rueidis.RedisMessage) (*db.KNNResult, error) {
	if len(raw) == 0 {
		return &db.KNNResult{}, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	hits := make([]db.KNNHit, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		pairs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		hit := db.KNNHit{Key: key, Fields: fieldMap(pairs)}
		if d, ok := hit.Fields[distanceField]; ok {
			if dist, err := strconv.ParseFloat(d, 64); err == nil {
				hit.Similarity = 1 - dist
			}
			delete(hit.Fields, distanceField)
		}
		hits = append(hits, hit)
	}

	return &db.KNNResult{Total: int(total), Hits: hits}, nil
}

func fieldMap(pairs []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for j := 0; j+1 < len(pairs); j += 2 {
		name, err := pairs[j].ToString()
		if err != nil {
			continue
		}
		value, err := pairs[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// VectorToBytes encodes v as the little-endian FLOAT32 blob used by VECTOR fields.
func VectorToBytes(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return string(buf)
}
