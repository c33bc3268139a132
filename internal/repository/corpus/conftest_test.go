package corpus

import (
	"context"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	listFn    func(ctx context.Context, q *db.ListQuery) (*db.ListPage, error)
	countFn   func(ctx context.Context, index, query string) (int, error)
	indexesFn func(ctx context.Context) ([]string, error)
}

func (m *mockStore) ListDocuments(ctx context.Context, q *db.ListQuery) (*db.ListPage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &db.ListPage{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index, query string) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, index, query)
	}
	return 0, nil
}

func (m *mockStore) ListIndexes(ctx context.Context) ([]string, error) {
	if m.indexesFn != nil {
		return m.indexesFn(ctx)
	}
	return nil, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, db.RedisLayout("ragdex:")), ms
}
