package redis

import (
	"context"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	pingFn        func(ctx context.Context) error
	getFn         func(ctx context.Context, key string) ([]byte, error)
	setNXFn       func(ctx context.Context, key string, value []byte) (bool, error)
	hsetFn        func(ctx context.Context, key string, fields map[string]string) error
	delFn         func(ctx context.Context, key string) error
	existsFn      func(ctx context.Context, key string) (bool, error)
	createIndexFn func(ctx context.Context, idx *db.VectorIndex) error
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.KNNResult, error)
	indexCountFn  func(ctx context.Context, index string) (int, error)
	indexDimsFn   func(ctx context.Context, index, field string) (int, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	if m.setNXFn != nil {
		return m.setNXFn(ctx, key, value)
	}
	return true, nil
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, idx *db.VectorIndex) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, idx)
	}
	return nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.KNNResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.KNNResult{}, nil
}

func (m *mockStore) IndexCount(ctx context.Context, index string) (int, error) {
	if m.indexCountFn != nil {
		return m.indexCountFn(ctx, index)
	}
	return 0, nil
}

func (m *mockStore) IndexDimensions(ctx context.Context, index, field string) (int, error) {
	if m.indexDimsFn != nil {
		return m.indexDimsFn(ctx, index, field)
	}
	return 0, db.ErrIndexNotFound
}

func newTestStore(t *testing.T) (*Store, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms), ms
}
