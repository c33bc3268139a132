// Package redis implements db.Store and db.KVStore over Redis with the query engine (FT.*) available.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragdex/internal/db"
)

var (
	_ db.Store   = (*Store)(nil)
	_ db.KVStore = (*Store)(nil)
)

const defaultClientName = "ragdex"

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// ClientName shows up in CLIENT LIST; defaults to "ragdex".
	ClientName string
	// WriteTimeout bounds a single command write; 0 keeps the rueidis default.
	WriteTimeout time.Duration
}

func (c Config) option() (rueidis.ClientOption, error) {
	if len(c.Addrs) == 0 {
		return rueidis.ClientOption{}, errors.New("redis: at least one address is required")
	}
	name := c.ClientName
	if name == "" {
		name = defaultClientName
	}
	return rueidis.ClientOption{
		InitAddress:      c.Addrs,
		Username:         c.Username,
		Password:         c.Password,
		SelectDB:         c.DB,
		ClientName:       name,
		ConnWriteTimeout: c.WriteTimeout,
		DisableCache:     true,

		// FT.SEARCH replies are decoded as RESP2 arrays.
		AlwaysRESP2: true,
	}, nil
}

// Store serves workspace documents, KNN search and the cache key space from one rueidis client.
type Store struct {
	client rueidis.Client
}

// NewStore connects to Redis. rueidis dials eagerly, so an unreachable server fails here.
func NewStore(cfg Config) (*Store, error) {
	opt, err := cfg.option()
	if err != nil {
		return nil, err
	}
	client, err := rueidis.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("redis: connect %s: %w", strings.Join(cfg.Addrs, ","), err)
	}
	return &Store{client: client}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return &db.Error{Op: "PING", Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady blocks until PING succeeds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return db.WaitReady(ctx, timeout, "redis", s.Ping)
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// isRedisErr reports whether err is a server reply error mentioning substr, ignoring case.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
