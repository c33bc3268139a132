package ollama

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

var _ domain.Generator = (*Generator)(nil)

// Generator is a chat backend served by Ollama's native /api/chat.
type Generator struct {
	llm      *ollama.LLM
	http     *http.Client
	base     string
	model    string
	provider string
	logger   *zap.Logger
}

// NewGenerator creates a generator. cfg.Model is used when a request names no model.
func NewGenerator(cfg *Config) (*Generator, error) {
	client := cfg.httpClient()
	llm, err := newLLM(cfg, client)
	if err != nil {
		return nil, err
	}
	return &Generator{
		llm:      llm,
		http:     client,
		base:     cfg.baseURL(),
		model:    cfg.Model,
		provider: cfg.provider(),
		logger:   cfg.logger(),
	}, nil
}

func (g *Generator) messages(req domain.GenerateRequest) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))
}

func (g *Generator) callOptions(req domain.GenerateRequest) (string, []llms.CallOption) {
	model := req.Model
	if model == "" {
		model = g.model
	}
	opts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	return model, opts
}

// Generate returns the whole answer in one response.
func (g *Generator) Generate(ctx context.Context, req domain.GenerateRequest) (domain.Generation, error) {
	model, opts := g.callOptions(req)
	return g.run(ctx, model, g.messages(req), opts)
}

// GenerateStream delivers tokens to onToken as Ollama emits them and returns the
// assembled answer. An error from onToken stops the stream and is returned as is.
func (g *Generator) GenerateStream(
	ctx context.Context, req domain.GenerateRequest, onToken domain.TokenFunc,
) (domain.Generation, error) {
	model, opts := g.callOptions(req)

	var tokenErr error
	opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		// the final "done" message arrives with empty content
		if len(chunk) == 0 {
			return nil
		}
		if err := onToken(ctx, string(chunk)); err != nil {
			tokenErr = err
			return err
		}
		return nil
	}))

	gen, err := g.run(ctx, model, g.messages(req), opts)
	if tokenErr != nil {
		return domain.Generation{}, tokenErr
	}
	return gen, err
}

func (g *Generator) run(
	ctx context.Context, model string, msgs []llms.MessageContent, opts []llms.CallOption,
) (domain.Generation, error) {
	start := time.Now()
	resp, err := g.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		g.observe(model, "error", 0, 0)
		if ctx.Err() != nil {
			return domain.Generation{}, ctx.Err()
		}
		return domain.Generation{}, fmt.Errorf("ollama chat: %v: %w", err, domain.ErrGenerationUnavailable)
	}
	if len(resp.Choices) == 0 {
		g.observe(model, "error", 0, 0)
		return domain.Generation{}, fmt.Errorf("empty chat response: %w", domain.ErrGenerationUnavailable)
	}

	choice := resp.Choices[0]
	prompt := intInfo(choice.GenerationInfo, "PromptTokens")
	completion := intInfo(choice.GenerationInfo, "CompletionTokens")
	g.observe(model, "success", prompt, completion)
	g.logger.Debug("Ollama chat finished",
		zap.String("model", model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("completion_tokens", completion),
	)

	return domain.Generation{
		Text:             choice.Content,
		Model:            model,
		PromptTokens:     prompt,
		CompletionTokens: completion,
	}, nil
}

// HealthCheck verifies that the daemon is reachable.
func (g *Generator) HealthCheck(ctx context.Context) error {
	return ping(ctx, g.http, g.base)
}

func (g *Generator) observe(model, status string, prompt, completion int) {
	metrics.GenerationFinished(g.provider, model, status, prompt, completion)
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
