package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

var _ domain.Generator = (*Generator)(nil)

// Generator is a chat-completion backend using the OpenAI-compatible API.
type Generator struct {
	client   *openai.Client
	model    string
	provider string
	logger   *zap.Logger
}

// NewGenerator creates a generator. cfg.Model is used when a request names no model.
func NewGenerator(cfg *Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:   newClient(cfg),
		model:    cfg.Model,
		provider: cfg.Provider,
		logger:   logger,
	}
}

func (g *Generator) chatRequest(req domain.GenerateRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = g.model
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
}

// Generate returns the whole answer in one response.
func (g *Generator) Generate(ctx context.Context, req domain.GenerateRequest) (domain.Generation, error) {
	creq := g.chatRequest(req)
	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		g.observe(creq.Model, "error", 0, 0)
		if ctx.Err() != nil {
			return domain.Generation{}, ctx.Err()
		}
		return domain.Generation{}, parseAPIError(err, "chat", domain.ErrGenerationUnavailable)
	}
	if len(resp.Choices) == 0 {
		g.observe(creq.Model, "error", 0, 0)
		return domain.Generation{}, fmt.Errorf("empty chat response: %w", domain.ErrGenerationUnavailable)
	}

	g.observe(creq.Model, "success", resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	g.logger.Debug("Chat completion finished",
		zap.String("model", creq.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	model := resp.Model
	if model == "" {
		model = creq.Model
	}
	return domain.Generation{
		Text:             resp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// GenerateStream delivers content deltas to onToken as they arrive and returns the
// assembled answer. An error from onToken stops reading and is returned as is.
func (g *Generator) GenerateStream(
	ctx context.Context, req domain.GenerateRequest, onToken domain.TokenFunc,
) (domain.Generation, error) {
	creq := g.chatRequest(req)
	creq.Stream = true
	creq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := g.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		g.observe(creq.Model, "error", 0, 0)
		if ctx.Err() != nil {
			return domain.Generation{}, ctx.Err()
		}
		return domain.Generation{}, parseAPIError(err, "chat stream", domain.ErrGenerationUnavailable)
	}
	defer stream.Close()

	var (
		sb    strings.Builder
		usage openai.Usage
		model = creq.Model
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			g.observe(creq.Model, "error", 0, 0)
			if ctx.Err() != nil {
				return domain.Generation{}, ctx.Err()
			}
			return domain.Generation{}, parseAPIError(err, "chat stream", domain.ErrGenerationUnavailable)
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onToken(ctx, choice.Delta.Content); err != nil {
				g.observe(creq.Model, "canceled", 0, 0)
				return domain.Generation{}, err
			}
			sb.WriteString(choice.Delta.Content)
		}
	}

	g.observe(creq.Model, "success", usage.PromptTokens, usage.CompletionTokens)
	return domain.Generation{
		Text:             sb.String(),
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (g *Generator) observe(model, status string, prompt, completion int) {
	metrics.GenerationFinished(g.provider, model, status, prompt, completion)
}
