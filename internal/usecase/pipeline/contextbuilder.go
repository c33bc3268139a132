package pipeline

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

// Prompt defaults.
const (
	DefaultSystemPrompt = `You are a helpful AI assistant. Use the provided context to answer questions accurately.
If the context doesn't contain enough information, say so clearly.
Always cite which source(s) you used in your answer.`

	promptTemplate = "Context:\n%s\n\nQuestion: %s\n\nAnswer based on the context provided above:"

	defaultContextLimit = 4096
	defaultMaxChars     = 800
	charsPerToken       = 4
	docSeparator        = "\n\n"
)

// EstimateTokens approximates the token count of text as ceil(chars/4).
func EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + charsPerToken - 1) / charsPerToken
}

// ContextBuilder renders retrieved documents into a prompt within a per-model token budget.
type ContextBuilder struct {
	limits       map[string]int
	defaultLimit int
	maxChars     int
	systemPrompt string
}

// NewContextBuilder creates a builder. limits maps model names to context window sizes.
func NewContextBuilder(limits map[string]int, defaultLimit, maxCharsPerDoc int, systemPrompt string) *ContextBuilder {
	if defaultLimit <= 0 {
		defaultLimit = defaultContextLimit
	}
	if maxCharsPerDoc <= 0 {
		maxCharsPerDoc = defaultMaxChars
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &ContextBuilder{limits: limits, defaultLimit: defaultLimit, maxChars: maxCharsPerDoc, systemPrompt: systemPrompt}
}

// SystemPrompt returns the configured system prompt.
func (b *ContextBuilder) SystemPrompt() string { return b.systemPrompt }

// Limit returns the context window of model.
func (b *ContextBuilder) Limit(model string) int {
	if n, ok := b.limits[model]; ok && n > 0 {
		return n
	}
	return b.defaultLimit
}

// BuiltContext is a rendered context and the documents it contains.
type BuiltContext struct {
	Text    string
	Prompt  string
	Sources []result.Fused
}

// Build renders docs in order and drops them from the tail once the budget is spent.
// The budget is the model window minus the completion reservation (at most half the window)
// minus the system prompt and the prompt template with the question.
func (b *ContextBuilder) Build(model, question string, maxTokens int, docs []result.Fused) BuiltContext {
	limit := b.Limit(model)
	reserve := min(maxTokens, limit/2)
	budget := limit - reserve - EstimateTokens(b.systemPrompt) - EstimateTokens(fmt.Sprintf(promptTemplate, "", question))

	var (
		sb      strings.Builder
		sources []result.Fused
	)
	for i := range docs {
		part := b.render(len(sources)+1, &docs[i])
		candidate := part
		if sb.Len() > 0 {
			candidate = sb.String() + docSeparator + part
		}
		if EstimateTokens(candidate) > budget {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString(docSeparator)
		}
		sb.WriteString(part)
		sources = append(sources, docs[i])
	}

	text := sb.String()
	return BuiltContext{
		Text:    text,
		Prompt:  fmt.Sprintf(promptTemplate, text, question),
		Sources: sources,
	}
}

func (b *ContextBuilder) render(n int, f *result.Fused) string {
	doc := f.Document()
	text := doc.Text()
	if r := []rune(text); len(r) > b.maxChars {
		text = string(r[:b.maxChars]) + "..."
	}
	return fmt.Sprintf("[Source %d: %s] (relevance: %.2f): %s", n, doc.Title(), f.RRFScore(), text)
}
