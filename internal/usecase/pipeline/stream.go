package pipeline

import (
	"context"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// EventType discriminates stream events.
type EventType string

// Stream event types. Done and Error are terminal.
const (
	EventToken EventType = "token"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one message of a streamed answer.
type Event struct {
	Type        EventType
	Token       string
	TokensSoFar int
	Elapsed     time.Duration
	// Response is set on EventDone.
	Response *pipeline.Response
	// Err is set on EventError.
	Err error
}

// Stream validates params synchronously, then runs the pipeline in a producer goroutine.
// The channel carries tokens followed by exactly one terminal event and is then closed.
// A slow consumer blocks the producer; canceling ctx stops it.
func (o *Orchestrator) Stream(ctx context.Context, p pipeline.Params) (<-chan Event, error) {
	req, err := o.NewRequest(p)
	if err != nil {
		return nil, err
	}

	ch := make(chan Event, o.opts.StreamBuffer)
	r := o.newRun(ctx, &req, "stream")
	go r.stream(ch)
	return ch, nil
}

func (r *run) stream(ch chan<- Event) {
	defer close(ch)
	ctx := r.ctx

	send := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	done := func(resp *pipeline.Response, outcome string) {
		send(Event{Type: EventDone, Response: r.complete(resp, outcome), Elapsed: time.Since(r.start)})
	}
	failed := func(err error) {
		err = r.fail(err)
		send(Event{Type: EventError, Err: err, Elapsed: time.Since(r.start)})
	}

	if resp := r.lookup(ctx); resp != nil {
		if send(Event{Type: EventToken, Token: resp.Answer, TokensSoFar: 1, Elapsed: time.Since(r.start)}) {
			done(resp, "cache_hit")
		}
		return
	}

	prep, err := r.prepare(ctx)
	if err != nil {
		failed(err)
		return
	}
	if prep == nil {
		resp := r.noContext()
		if send(Event{Type: EventToken, Token: resp.Answer, TokensSoFar: 1, Elapsed: time.Since(r.start)}) {
			done(resp, "no_context")
		}
		return
	}

	r.transition(pipeline.Generating)
	genStart := time.Now()
	tokens := 0
	gen, err := r.o.deps.Generator.GenerateStream(ctx, r.generateRequest(prep), func(ctx context.Context, tok string) error {
		tokens++
		if !send(Event{Type: EventToken, Token: tok, TokensSoFar: tokens, Elapsed: time.Since(r.start)}) {
			return ctx.Err()
		}
		metrics.StreamedTokensTotal.Inc()
		return nil
	})
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		failed(domain.NewStageError(domain.StageGenerating, generationError(err)))
		return
	}

	resp := r.generated(prep, gen, time.Since(genStart))
	r.transition(pipeline.CacheWrite)
	r.storeAnswerAsync(resp)
	done(resp, "generated")
}
