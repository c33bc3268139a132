package domain

import "context"

// GenerateRequest is one prompt for the text-generation backend.
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Generation is a completed answer.
type Generation struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// TokenFunc receives one incremental token. Returning an error aborts generation.
// Blocking inside the callback suspends the producer.
type TokenFunc func(ctx context.Context, token string) error

// Generator is the text-generation contract.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Generation, error)
	GenerateStream(ctx context.Context, req GenerateRequest, onToken TokenFunc) (Generation, error)
}
