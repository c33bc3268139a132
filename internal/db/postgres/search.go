package postgres

import (
	"context"
	"errors"

	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/ragdex/internal/db"
)

const defaultListLimit = 500

// SearchKNN orders workspace documents by vector distance.
// Distances follow the Redis convention (cosine and ip map to 1 - similarity) so the
// caller can treat both backends alike.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, errors.New("index name is required")
	case len(q.Vector) == 0:
		return nil, errors.New("vector is required")
	case q.K <= 0:
		return nil, errors.New("k must be positive")
	}
	if err := s.requireWorkspace(ctx, q.IndexName); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, knnSQL(operator(s.distance)), q.IndexName, pgvector.NewVector(q.Vector), q.K)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	defer rows.Close()

	res := &db.SearchResult{}
	for rows.Next() {
		var (
			id, content, metadata string
			dist                  float64
		)
		if err := rows.Scan(&id, &content, &metadata, &dist); err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		d := redisDistance(s.distance, dist)
		score := d
		if !q.RawScores {
			score = max(0, 1.0-d)
		}
		res.Entries = append(res.Entries, db.SearchEntry{
			Key:    id,
			Score:  score,
			Fields: fields(content, metadata),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	res.Total = len(res.Entries)
	return res, nil
}

// ListDocuments pages through workspace documents in id order. The cursor is the last
// id of the previous page.
func (s *Store) ListDocuments(ctx context.Context, q *db.ListQuery) (*db.ListPage, error) {
	if err := s.requireWorkspace(ctx, q.IndexName); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.pool.Query(ctx, sqlListDocuments, q.IndexName, q.Cursor, limit)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	defer rows.Close()

	page := &db.ListPage{}
	for rows.Next() {
		var id, content, metadata string
		if err := rows.Scan(&id, &content, &metadata); err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		page.Entries = append(page.Entries, db.SearchEntry{Key: id, Fields: fields(content, metadata)})
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	page.Cursor = nextCursor(page.Entries, limit)
	return page, nil
}

// nextCursor is the last id of a full page, or empty when the walk is done.
func nextCursor(entries []db.SearchEntry, limit int) string {
	if len(entries) < limit {
		return ""
	}
	return entries[len(entries)-1].Key
}

// SearchCount returns the number of documents in the workspace.
func (s *Store) SearchCount(ctx context.Context, index, _ string) (int, error) {
	if err := s.requireWorkspace(ctx, index); err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, sqlCountDocuments, index).Scan(&n); err != nil {
		return 0, &db.Error{Op: db.OpSearch, Err: err}
	}
	return int(n), nil
}

func operator(distance string) string {
	switch distance {
	case DistanceIP:
		return "<#>"
	case DistanceL2:
		return "<->"
	default:
		return "<=>"
	}
}

// redisDistance converts a pgvector distance to the Redis convention.
// pgvector's <#> yields the negated inner product.
func redisDistance(distance string, d float64) float64 {
	if distance == DistanceIP {
		return 1 + d
	}
	return d
}

func fields(content, metadata string) map[string]string {
	f := map[string]string{db.FieldContent: content}
	if metadata != "" && metadata != "{}" {
		f[db.FieldMetadata] = metadata
	}
	return f
}
