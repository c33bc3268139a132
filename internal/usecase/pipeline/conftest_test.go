package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/usecase/cache"
	"github.com/kailas-cloud/ragdex/internal/usecase/search"
)

type mockRetriever struct {
	retrieveFn func(ctx context.Context, q search.HybridQuery) ([]search.WeightedList, error)
	calls      int
	lastQuery  search.HybridQuery
}

func (m *mockRetriever) Retrieve(ctx context.Context, q search.HybridQuery) ([]search.WeightedList, error) {
	m.calls++
	m.lastQuery = q
	if m.retrieveFn != nil {
		return m.retrieveFn(ctx, q)
	}
	return nil, nil
}

func (m *mockRetriever) Candidates(k int) int { return max(k, min(2*k, 50)) }

type mockEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (m *mockEmbedder) Embed(context.Context, string) ([]float32, error) {
	m.calls++
	return m.vec, m.err
}

type storedAnswer struct {
	workspace string
	question  string
	embedding []float32
	payload   cache.Payload
}

type mockCache struct {
	lookupFn func(workspace, question string, embedding []float32) (*cache.Entry, cache.Status)
	storeErr error

	mu            sync.Mutex
	lookups       int
	lastEmbedding []float32
	stored        []storedAnswer
}

func (m *mockCache) Lookup(_ context.Context, ws, q string, emb []float32) (*cache.Entry, cache.Status) {
	m.mu.Lock()
	m.lookups++
	m.lastEmbedding = emb
	m.mu.Unlock()
	if m.lookupFn != nil {
		return m.lookupFn(ws, q, emb)
	}
	return nil, cache.Miss
}

func (m *mockCache) Store(_ context.Context, ws, q string, emb []float32, p cache.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	m.stored = append(m.stored, storedAnswer{workspace: ws, question: q, embedding: emb, payload: p})
	return nil
}

func (m *mockCache) storedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

type mockGenerator struct {
	text     string
	tokens   []string
	err      error
	streamFn func(ctx context.Context, onToken domain.TokenFunc) (domain.Generation, error)

	mu      sync.Mutex
	calls   int
	lastReq domain.GenerateRequest
}

func (m *mockGenerator) record(req domain.GenerateRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastReq = req
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockGenerator) Generate(_ context.Context, req domain.GenerateRequest) (domain.Generation, error) {
	m.record(req)
	if m.err != nil {
		return domain.Generation{}, m.err
	}
	return domain.Generation{Text: m.text, Model: req.Model, PromptTokens: 10, CompletionTokens: 5}, nil
}

func (m *mockGenerator) GenerateStream(
	ctx context.Context, req domain.GenerateRequest, onToken domain.TokenFunc,
) (domain.Generation, error) {
	m.record(req)
	if m.streamFn != nil {
		return m.streamFn(ctx, onToken)
	}
	for _, tok := range m.tokens {
		if err := onToken(ctx, tok); err != nil {
			return domain.Generation{}, err
		}
	}
	if m.err != nil {
		return domain.Generation{}, m.err
	}
	return domain.Generation{Text: strings.Join(m.tokens, ""), Model: req.Model}, nil
}

type recorder struct {
	mu     sync.Mutex
	states []pipeline.State
}

func (r *recorder) OnTransition(_ string, from, to pipeline.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		r.states = append(r.states, from)
	}
	r.states = append(r.states, to)
}

func (r *recorder) path() []pipeline.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.State(nil), r.states...)
}

func (r *recorder) visited(s pipeline.State) bool {
	for _, st := range r.path() {
		if st == s {
			return true
		}
	}
	return false
}

func doc(id, title, text string) document.Document {
	var meta document.Metadata
	if title != "" {
		meta = document.Metadata{{Key: "title", Value: title}}
	}
	return document.Reconstruct(id, text, meta)
}

func rankedList(method result.Method, docs ...document.Document) []result.Ranked {
	out := make([]result.Ranked, len(docs))
	for i, d := range docs {
		out[i] = result.NewRanked(d, float64(len(docs)-i), i+1, method)
	}
	return out
}

func corpusLists() []search.WeightedList {
	a := doc("a", "Frogs", "Frogs eat insects.")
	b := doc("b", "Toads", "Toads live on land.")
	c := doc("c", "Ponds", "Ponds host frogs and newts.")
	return []search.WeightedList{
		{Results: rankedList(result.Semantic, a, b, c), Weight: 0.5},
		{Results: rankedList(result.Lexical, c, a), Weight: 0.5},
	}
}

func fused(ids ...string) []result.Fused {
	out := make([]result.Fused, len(ids))
	for i, id := range ids {
		out[i] = result.NewFused(doc(id, "", "text "+id), 1/float64(61+i), nil, nil)
	}
	return out
}
