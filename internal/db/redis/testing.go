package redis

import "github.com/redis/rueidis"

// NewStoreForTest wraps an existing client (typically a rueidis mock).
func NewStoreForTest(client rueidis.Client) *Store {
	return &Store{client: client}
}
