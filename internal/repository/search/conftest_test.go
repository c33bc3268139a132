package search

import (
	"context"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/db"
)

// fakeStore answers KNN queries with a canned result and records what it was asked.
type fakeStore struct {
	searchKNNFn func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	queries     []db.KNNQuery
}

func (f *fakeStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	f.queries = append(f.queries, *q)
	if f.searchKNNFn != nil {
		return f.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T) (*Repo, *fakeStore) {
	t.Helper()
	fs := &fakeStore{}
	return New(fs, db.RedisLayout("ragdex:")), fs
}

// hit builds a backend entry for a document stored under the redis layout.
func hit(workspace, id string, score float64, content string) db.SearchEntry {
	return db.SearchEntry{
		Key:    db.RedisLayout("ragdex:").DocKeyPrefix(workspace) + id,
		Score:  score,
		Fields: map[string]string{db.FieldContent: content},
	}
}

func testVector() []float32 {
	return []float32{0.5, 0.5, 0.5, 0.5}
}
