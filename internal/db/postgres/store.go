// Package postgres implements db.Store over Postgres with the pgvector extension.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kailas-cloud/ragdex/internal/db"
)

var _ db.Store = (*Store)(nil)

// Distance metrics understood by the store.
const (
	DistanceCosine = "cosine"
	DistanceIP     = "ip"
	DistanceL2     = "l2"
)

// Config holds connection parameters for a Postgres store.
type Config struct {
	DSN      string
	Distance string
	MaxConns int32
}

// Store reads workspaces from ragdex_workspaces and documents from ragdex_documents.
// Workspace names act as index names; document ids act as entry keys.
type Store struct {
	pool     *pgxpool.Pool
	distance string
}

// NewStore opens a pgx pool. The connection is lazy; call WaitForReady before use.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("dsn is required")
	}
	distance, err := normalizeDistance(cfg.Distance)
	if err != nil {
		return nil, err
	}

	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &Store{pool: pool, distance: distance}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WaitForReady blocks until the pool answers a ping or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return db.WaitReady(ctx, timeout, "postgres", s.pool.Ping)
}

// Migrate enables pgvector and creates the tables if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return &db.Error{Op: db.OpQuery, Err: err}
		}
	}
	return nil
}

// IndexExists reports whether the workspace is registered.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, sqlWorkspaceExists, name).Scan(&ok)
	if err != nil {
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return ok, nil
}

// ListIndexes returns the registered workspaces.
func (s *Store) ListIndexes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, sqlListWorkspaces)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return names, nil
}

func (s *Store) requireWorkspace(ctx context.Context, name string) error {
	ok, err := s.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return db.ErrIndexNotFound
	}
	return nil
}

func normalizeDistance(d string) (string, error) {
	switch d {
	case "", DistanceCosine:
		return DistanceCosine, nil
	case DistanceIP, DistanceL2:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported distance %q", d)
	}
}
