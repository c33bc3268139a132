// Package memory is an in-process db.KVStore bounded by an LRU.
package memory

import (
	"context"
	"path"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kailas-cloud/ragdex/internal/db"
)

var _ db.KVStore = (*Store)(nil)

const defaultSize = 10000

type entry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// Store keeps values in an LRU; expired entries are dropped on read.
type Store struct {
	cache *lru.Cache[string, entry]
	now   func() time.Time
}

// NewStore creates a store holding at most size entries.
func NewStore(size int) (*Store, error) {
	if size <= 0 {
		size = defaultSize
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Store{cache: c, now: time.Now}, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Get returns the value or db.ErrKeyNotFound.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := s.lookup(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

// Set stores value without expiry.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.cache.Add(key, entry{data: clone(value)})
	return nil
}

// SetWithTTL stores value that expires after ttl.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{data: clone(value)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.cache.Add(key, e)
	return nil
}

// GetMulti returns one slot per key, nil for misses.
func (s *Store) GetMulti(_ context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if data, ok := s.lookup(k); ok {
			out[i] = data
		}
	}
	return out, nil
}

// Del removes keys.
func (s *Store) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.cache.Remove(k)
	}
	return nil
}

// Scan returns live keys matching a glob pattern.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	var out []string
	for _, k := range s.cache.Keys() {
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		if !ok {
			continue
		}
		if _, live := s.peek(k); live {
			out = append(out, k)
		}
	}
	return out, nil
}

// Len reports the number of stored entries, expired ones included.
func (s *Store) Len() int { return s.cache.Len() }

func (s *Store) lookup(key string) ([]byte, bool) {
	e, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	if s.expired(e) {
		s.cache.Remove(key)
		return nil, false
	}
	return clone(e.data), true
}

func (s *Store) peek(key string) (entry, bool) {
	e, ok := s.cache.Peek(key)
	if !ok || s.expired(e) {
		return entry{}, false
	}
	return e, true
}

func (s *Store) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
