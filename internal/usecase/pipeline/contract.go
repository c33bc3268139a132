package pipeline

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	"github.com/kailas-cloud/ragdex/internal/usecase/cache"
	"github.com/kailas-cloud/ragdex/internal/usecase/search"
)

// Retriever fetches the candidate lists of a hybrid query.
type Retriever interface {
	Retrieve(ctx context.Context, q search.HybridQuery) ([]search.WeightedList, error)
	Candidates(k int) int
}

// QueryEmbedder vectorizes the question once per run.
type QueryEmbedder interface {
	Embed(ctx context.Context, query string) ([]float32, error)
}

// AnswerCache is the similarity cache as seen by the orchestrator.
type AnswerCache interface {
	Lookup(ctx context.Context, workspace, question string, embedding []float32) (*cache.Entry, cache.Status)
	Store(ctx context.Context, workspace, question string, embedding []float32, p cache.Payload) error
}

// Observer is notified of every state change of every run.
type Observer interface {
	OnTransition(queryID string, from, to pipeline.State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(queryID string, from, to pipeline.State)

// OnTransition calls f.
func (f ObserverFunc) OnTransition(queryID string, from, to pipeline.State) { f(queryID, from, to) }
