// Package corpus loads workspace documents from the vector backend for the lexical index.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/document"
)

const pageSize = 500

// store is the consumer interface for corpus reads (ISP).
type store interface {
	ListDocuments(ctx context.Context, q *db.ListQuery) (*db.ListPage, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	ListIndexes(ctx context.Context) ([]string, error)
}

// Repo implements lexical.Loader.
type Repo struct {
	store  store
	layout db.Layout
}

// New creates a corpus repository.
func New(s store, layout db.Layout) *Repo {
	return &Repo{store: s, layout: layout}
}

// Load walks every document of the workspace and returns them sorted by id.
// A missing workspace yields domain.CollectionNotFoundError.
func (r *Repo) Load(ctx context.Context, workspace string) ([]document.Document, error) {
	prefix := r.layout.DocKeyPrefix(workspace)
	q := db.ListQuery{
		IndexName: r.layout.IndexName(workspace),
		KeyPrefix: prefix,
		Limit:     pageSize,
	}

	var (
		docs []document.Document
		seen = make(map[string]struct{})
	)
	for page := 0; ; page++ {
		res, err := r.store.ListDocuments(ctx, &q)
		if err != nil {
			if errors.Is(err, db.ErrIndexNotFound) {
				return nil, domain.NewCollectionNotFound(workspace)
			}
			return nil, fmt.Errorf("list %s page %d: %w", workspace, page, err)
		}
		for _, e := range res.Entries {
			if _, dup := seen[e.Key]; dup {
				continue
			}
			seen[e.Key] = struct{}{}
			docs = append(docs, FromEntry(e, prefix))
		}
		if res.Cursor == "" {
			break
		}
		q.Cursor = res.Cursor
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID() < docs[j].ID() })
	return docs, nil
}

// Count returns how many documents the workspace holds in the backend.
// Backend failures wrap domain.ErrRetrievalUnavailable.
func (r *Repo) Count(ctx context.Context, workspace string) (int, error) {
	n, err := r.store.SearchCount(ctx, r.layout.IndexName(workspace), "*")
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, domain.NewCollectionNotFound(workspace)
		}
		return 0, fmt.Errorf("%w: count %s: %w", domain.ErrRetrievalUnavailable, workspace, err)
	}
	return n, nil
}

// Workspaces lists the workspaces present in the backend, sorted by name.
// Indexes outside the key layout are skipped.
func (r *Repo) Workspaces(ctx context.Context) ([]string, error) {
	names, err := r.store.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list workspaces: %w", domain.ErrRetrievalUnavailable, err)
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if ws, ok := r.layout.Workspace(name); ok {
			out = append(out, ws)
		}
	}
	sort.Strings(out)
	return out, nil
}
