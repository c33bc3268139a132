// Package ollama adapts a native Ollama server (/api/chat, /api/embed) to the
// embedding and generation contracts via langchaingo.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
)

// DefaultBaseURL is the address of a local Ollama daemon.
const DefaultBaseURL = "http://localhost:11434"

// Config holds the server connection settings.
type Config struct {
	BaseURL  string
	Model    string
	Provider string
	Timeout  time.Duration
	Logger   *zap.Logger
}

func (c *Config) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Config) provider() string {
	if c.Provider == "" {
		return "ollama"
	}
	return c.Provider
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Config) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// newLLM validates the server URL up front: ollama.WithServerURL exits the
// process on a parse failure.
func newLLM(cfg *Config, client *http.Client) (*ollama.LLM, error) {
	raw := cfg.baseURL()
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ollama url %q", raw)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	llm, err := ollama.New(
		ollama.WithServerURL(raw),
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(client),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return llm, nil
}

// ping checks that the daemon answers /api/tags.
func ping(ctx context.Context, client *http.Client, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags: status %d", resp.StatusCode)
	}
	return nil
}
