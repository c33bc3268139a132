package chi

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
	"github.com/kailas-cloud/ragdex/internal/lexical"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/ragdex/internal/usecase/pipeline"
	searchuc "github.com/kailas-cloud/ragdex/internal/usecase/search"
)

// Searcher runs /search requests.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (*searchuc.Outcome, error)
}

// Answerer runs the question-answering pipeline.
type Answerer interface {
	Execute(ctx context.Context, p pipeline.Params) (*pipeline.Response, error)
	Stream(ctx context.Context, p pipeline.Params) (<-chan pipelineuc.Event, error)
}

// Indexer rebuilds and reports the lexical indexes.
type Indexer interface {
	Reload(ctx context.Context, workspace string) (*lexical.Index, error)
	Stats() []lexical.Stats
}

// CacheAdmin invalidates and counts answer-cache entries.
type CacheAdmin interface {
	Invalidate(ctx context.Context, workspace, question string) (int, error)
	InvalidateWorkspace(ctx context.Context, workspace string) (int, error)
	Stats(ctx context.Context, workspace string) (int, error)
}

// CollectionReader reports what the vector backend holds.
type CollectionReader interface {
	Count(ctx context.Context, workspace string) (int, error)
	Workspaces(ctx context.Context) ([]string, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
