package db

import (
	"context"
	"time"
)

// Store is the vector backend facade: the document store the corpus is read from and the
// KNN searcher used by semantic retrieval.
type Store interface {
	Pinger
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations (answer cache, embedding cache).
type KVStore interface {
	Pinger
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// GetMulti returns one slot per key; missing keys yield nil.
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// IndexManager reports which workspace indexes exist.
type IndexManager interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	ListIndexes(ctx context.Context) ([]string, error)
}

// Searcher provides read operations over a workspace index.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	// ListDocuments walks every document of a workspace a page at a time. Pages may repeat
	// entries; the walk is not limited by search result caps.
	ListDocuments(ctx context.Context, q *ListQuery) (*ListPage, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}
