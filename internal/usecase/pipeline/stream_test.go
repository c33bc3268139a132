package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	"github.com/kailas-cloud/ragdex/internal/usecase/cache"
	"github.com/kailas-cloud/ragdex/internal/usecase/search"
)

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not close, got %d events", len(events))
		}
	}
}

func terminalCount(events []Event) int {
	n := 0
	for _, ev := range events {
		if ev.Type == EventDone || ev.Type == EventError {
			n++
		}
	}
	return n
}

func TestStream_TokensInOrderUnderSlowConsumer(t *testing.T) {
	f := newFixture(t, true)
	tokens := make([]string, 100)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d ", i)
	}
	f.generator.tokens = tokens

	ch, err := f.orch.Stream(context.Background(), pipeline.Params{Question: "q", Stream: true})
	require.NoError(t, err)

	var events []Event
	for ev := range ch {
		if len(events) < 5 {
			time.Sleep(10 * time.Millisecond)
		}
		events = append(events, ev)
	}

	require.Len(t, events, len(tokens)+1)
	for i, tok := range tokens {
		assert.Equal(t, EventToken, events[i].Type)
		assert.Equal(t, tok, events[i].Token)
		assert.Equal(t, i+1, events[i].TokensSoFar)
	}

	last := events[len(events)-1]
	require.Equal(t, EventDone, last.Type)
	assert.Equal(t, strings.Join(tokens, ""), last.Response.Answer)
	assert.Len(t, last.Response.Sources, 3)
	assert.Equal(t, 1, terminalCount(events))
}

func TestStream_BackgroundCacheWrite(t *testing.T) {
	f := newFixture(t, true)

	ch, err := f.orch.Stream(context.Background(), pipeline.Params{Question: "q"})
	require.NoError(t, err)
	events := collect(t, ch)
	require.Equal(t, EventDone, events[len(events)-1].Type)

	require.NoError(t, f.orch.Close(time.Second))
	require.Equal(t, 1, f.cache.storedCount())
	assert.Equal(t, "Frogs eat insects.", f.cache.stored[0].payload.Answer)
}

func TestStream_CacheHit(t *testing.T) {
	f := newFixture(t, true)
	f.cache.lookupFn = func(string, string, []float32) (*cache.Entry, cache.Status) {
		return &cache.Entry{Payload: cache.Payload{Answer: "cached"}}, cache.ExactHit
	}

	ch, err := f.orch.Stream(context.Background(), pipeline.Params{Question: "q"})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 2)
	assert.Equal(t, EventToken, events[0].Type)
	assert.Equal(t, "cached", events[0].Token)
	require.Equal(t, EventDone, events[1].Type)
	assert.Equal(t, pipeline.CacheExactHit, events[1].Response.CacheStatus)
	assert.Equal(t, 0, f.generator.callCount())
}

func TestStream_NoDocuments(t *testing.T) {
	f := newFixture(t, true)
	f.retriever.retrieveFn = func(context.Context, search.HybridQuery) ([]search.WeightedList, error) {
		return nil, nil
	}

	ch, err := f.orch.Stream(context.Background(), pipeline.Params{Question: "q"})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 2)
	assert.Equal(t, NoContextAnswer, events[0].Token)
	assert.True(t, events[1].Response.NoContext)
	assert.Equal(t, 0, f.generator.callCount())
}

func TestStream_RetrievalFailure(t *testing.T) {
	f := newFixture(t, true)
	f.retriever.retrieveFn = func(context.Context, search.HybridQuery) ([]search.WeightedList, error) {
		return nil, errors.New("timeout")
	}

	ch, err := f.orch.Stream(context.Background(), pipeline.Params{Question: "q"})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	require.ErrorIs(t, events[0].Err, domain.ErrRetrievalUnavailable)
	assert.Equal(t, domain.StageRetrieving, domain.StageOf(events[0].Err))
}

func TestStream_GenerationFailsMidway(t *testing.T) {
	f := newFixture(t, true)
	f.generator.tokens = []string{"a", "b"}
	f.generator.err = errors.New("connection reset")

	ch, err := f.orch.Stream(context.Background(), pipeline.Params{Question: "q"})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Token)
	assert.Equal(t, "b", events[1].Token)
	assert.Equal(t, EventError, events[2].Type)
	require.ErrorIs(t, events[2].Err, domain.ErrGenerationUnavailable)
	assert.Equal(t, 1, terminalCount(events))

	require.NoError(t, f.orch.Close(time.Second))
	assert.Equal(t, 0, f.cache.storedCount())
}

func TestStream_CancelStopsGeneration(t *testing.T) {
	f := newFixture(t, true)
	generatorDone := make(chan error, 1)
	f.generator.streamFn = func(ctx context.Context, onToken domain.TokenFunc) (domain.Generation, error) {
		for {
			if err := onToken(ctx, "x"); err != nil {
				generatorDone <- err
				return domain.Generation{}, err
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := f.orch.Stream(ctx, pipeline.Params{Question: "q"})
	require.NoError(t, err)

	<-ch
	<-ch
	cancel()

	select {
	case err := <-generatorDone:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("generator kept running after cancel")
	}
	collect(t, ch)
}

func TestStream_InvalidRequestIsSynchronous(t *testing.T) {
	f := newFixture(t, true)

	ch, err := f.orch.Stream(context.Background(), pipeline.Params{Question: ""})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Nil(t, ch)
}
