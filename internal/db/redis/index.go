package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragdex/internal/db"
)

// CreateIndex runs FT.CREATE for idx. An existing index yields db.ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, idx *db.VectorIndex) error {
	if err := idx.Validate(); err != nil {
		return err //nolint:wrapcheck // validation message is self-describing
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(idx.CreateArgs()...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// IndexDimensions reads the DIM of the VECTOR field from FT.INFO.
// A field that is not a vector attribute of the index yields 0.
func (s *Store) IndexDimensions(ctx context.Context, index, field string) (int, error) {
	info, err := s.do(ctx, s.b().Arbitrary("FT.INFO").Args(index).Build()).AsMap()
	if err != nil {
		if isUnknownIndex(err) {
			return 0, db.ErrIndexNotFound
		}
		return 0, &db.Error{Op: db.OpIndexInfo, Err: err}
	}

	attrs, ok := info["attributes"]
	if !ok {
		return 0, nil
	}
	list, err := attrs.ToArray()
	if err != nil {
		return 0, fmt.Errorf("parse index attributes: %w", err)
	}
	for i := range list {
		attr, err := list[i].AsMap()
		if err != nil {
			continue
		}
		if !attributeNamed(attr, field) {
			continue
		}
		dim, ok := attr["dim"]
		if !ok {
			return 0, nil
		}
		n, err := dim.AsInt64()
		if err != nil {
			return 0, fmt.Errorf("parse %s dim: %w", field, err)
		}
		return int(n), nil
	}
	return 0, nil
}

// attributeNamed matches either the alias or the hash field of an FT.INFO attribute.
func attributeNamed(attr map[string]rueidis.RedisMessage, field string) bool {
	for _, key := range []string{"attribute", "identifier"} {
		v, ok := attr[key]
		if !ok {
			continue
		}
		if name, err := v.ToString(); err == nil && name == field {
			return true
		}
	}
	return false
}
