package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragdex/internal/db"
)

// vectorAttr is the schema alias of the __vector hash field.
// FT.SEARCH names its KNN distance "__vector_score" after it.
const vectorAttr = "vector"

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, errors.New("index name is required")
	case len(q.Vector) == 0:
		return nil, errors.New("vector is required")
	case q.K <= 0:
		return nil, errors.New("k must be positive")
	}

	args := []string{
		q.IndexName,
		fmt.Sprintf("*=>[KNN %d @%s $BLOB]", q.K, vectorAttr),
		"SORTBY", db.FieldVectorScore,
	}
	if len(q.ReturnFields) > 0 {
		fields := append([]string{db.FieldVectorScore}, q.ReturnFields...)
		args = append(args, "RETURN", strconv.Itoa(len(fields)))
		args = append(args, fields...)
	}
	args = append(args,
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	raw, err := s.search(ctx, args)
	if err != nil {
		return nil, err
	}

	res, err := parseEntries(raw)
	if err != nil {
		return nil, err
	}
	for i := range res.Entries {
		e := &res.Entries[i]
		scoreStr, ok := e.Fields[db.FieldVectorScore]
		if !ok {
			continue
		}
		if d, perr := strconv.ParseFloat(scoreStr, 64); perr == nil {
			if q.RawScores {
				e.Score = d
			} else {
				e.Score = max(0, 1.0-d) // cosine distance to similarity
			}
		}
		delete(e.Fields, db.FieldVectorScore)
	}
	return res, nil
}

// ListDocuments walks the workspace hashes with SCAN over the document key prefix and
// loads each batch with pipelined HGETALL. The first page checks that the index exists.
// SCAN may return a key more than once.
func (s *Store) ListDocuments(ctx context.Context, q *db.ListQuery) (*db.ListPage, error) {
	if q.KeyPrefix == "" {
		return nil, errors.New("key prefix is required")
	}

	var cursor uint64
	if q.Cursor == "" {
		ok, err := s.IndexExists(ctx, q.IndexName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, db.ErrIndexNotFound
		}
	} else {
		c, err := strconv.ParseUint(q.Cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid list cursor %q: %w", q.Cursor, err)
		}
		cursor = c
	}
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = scanBatch
	}

	cmd := s.b().Scan().Cursor(cursor).Match(escapeGlob(q.KeyPrefix) + "*").Count(limit).Type("hash").Build()
	entry, err := s.do(ctx, cmd).AsScanEntry()
	if err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}

	page := &db.ListPage{}
	if entry.Cursor != 0 {
		page.Cursor = strconv.FormatUint(entry.Cursor, 10)
	}
	if len(entry.Elements) == 0 {
		return page, nil
	}

	cmds := make(rueidis.Commands, 0, len(entry.Elements))
	for _, k := range entry.Elements {
		cmds = append(cmds, s.b().Hgetall().Key(k).Build())
	}
	page.Entries = make([]db.SearchEntry, 0, len(entry.Elements))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		fields, err := res.AsStrMap()
		if err != nil {
			return nil, &db.Error{Op: db.OpHGetAll, Err: err}
		}
		if len(fields) == 0 {
			// deleted after SCAN
			continue
		}
		page.Entries = append(page.Entries, db.SearchEntry{Key: entry.Elements[i], Fields: fields})
	}
	return page, nil
}

// SearchCount returns document count via FT.SEARCH with LIMIT 0 0.
func (s *Store) SearchCount(ctx context.Context, index, query string) (int, error) {
	raw, err := s.search(ctx, []string{index, query, "LIMIT", "0", "0"})
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

func (s *Store) search(ctx context.Context, args []string) ([]rueidis.RedisMessage, error) {
	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return raw, nil
}

// parseEntries decodes the RESP2 reply [total, key1, fields1, key2, fields2, ...].
func parseEntries(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		entries = append(entries, db.SearchEntry{Key: key, Fields: parseFieldPairs(fields)})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// escapeGlob quotes the SCAN MATCH metacharacters in s.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// vectorToBytes encodes float32s as the little-endian blob FT.SEARCH PARAMS expects.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
