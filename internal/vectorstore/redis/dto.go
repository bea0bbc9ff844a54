package redis

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/db/redis"
	"github.com/kailas-cloud/ragdex/internal/domain/collection"
	"github.com/kailas-cloud/ragdex/internal/domain/point"
)

// metaRow is the JSON document stored under the collection metadata key.
type metaRow struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
	Metric     string `json:"metric"`
	Model      string `json:"model,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

func collectionToMeta(col collection.Collection) ([]byte, error) {
	data, err := json.Marshal(metaRow{
		Name:       col.Name(),
		Dimensions: col.Dimensions(),
		Metric:     col.Metric(),
		Model:      col.Model(),
		CreatedAt:  col.CreatedAt(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal collection meta: %w", err)
	}
	return data, nil
}

func metaToCollection(data []byte) (collection.Collection, error) {
	var row metaRow
	if err := json.Unmarshal(data, &row); err != nil {
		return collection.Collection{}, fmt.Errorf("unmarshal collection meta: %w", err)
	}
	if row.Dimensions <= 0 {
		return collection.Collection{}, fmt.Errorf("collection meta %q has no dimensions", row.Name)
	}
	return collection.Reconstruct(row.Name, row.Dimensions, row.Metric, row.Model, row.CreatedAt), nil
}

// pointToHash renders payload fields plus the FLOAT32 vector blob for HSET.
func pointToHash(p point.Point) map[string]string {
	fields := p.Payload().Map()
	fields[vectorField] = redis.VectorToBytes(p.Vector())
	return fields
}
