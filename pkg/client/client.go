package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a non-JSON error body is kept in the message.
const maxErrorBody = 512

// Client talks to one ragdex server. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	timeout time.Duration
	obs     *observer
}

// New creates a Client for the server at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("ragdex: invalid base url %q", baseURL)
	}

	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.apiKey,
		http:    hc,
		timeout: cfg.timeout,
		obs:     obs,
	}, nil
}

// Search runs a retrieval-only query.
func (c *Client) Search(ctx context.Context, req SearchRequest) (res *SearchResponse, err error) {
	defer c.observe("search", time.Now(), &err)

	res = &SearchResponse{}
	if err = c.call(ctx, http.MethodPost, "/search", req, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Query asks a question and waits for the whole answer.
func (c *Client) Query(ctx context.Context, req QueryRequest) (res *QueryResponse, err error) {
	defer c.observe("query", time.Now(), &err)

	res = &QueryResponse{}
	if err = c.call(ctx, http.MethodPost, "/query", req, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Reload rebuilds the lexical index of workspace ("" = server default).
func (c *Client) Reload(ctx context.Context, workspace string) (res *ReloadResponse, err error) {
	defer c.observe("reload", time.Now(), &err)

	res = &ReloadResponse{}
	body := map[string]string{"workspace": workspace}
	if err = c.call(ctx, http.MethodPost, "/reload", body, res); err != nil {
		return nil, err
	}
	return res, nil
}

// InvalidateCache drops the cached answer to question, or every cached answer of the
// workspace when question is empty.
func (c *Client) InvalidateCache(ctx context.Context, workspace, question string) (res *InvalidateResponse, err error) {
	defer c.observe("invalidate", time.Now(), &err)

	res = &InvalidateResponse{}
	body := map[string]string{"workspace": workspace, "question": question}
	if err = c.call(ctx, http.MethodPost, "/cache/invalidate", body, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Stats returns lexical index, cache and queue state.
func (c *Client) Stats(ctx context.Context) (res *Stats, err error) {
	defer c.observe("stats", time.Now(), &err)

	res = &Stats{}
	if err = c.call(ctx, http.MethodGet, "/stats", nil, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Health returns the server health. An unhealthy server (503) is reported through
// the status, not as an error.
func (c *Client) Health(ctx context.Context) (res *HealthStatus, err error) {
	defer c.observe("health", time.Now(), &err)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.send(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, readAPIError(resp)
	}
	res = &HealthStatus{}
	if err = json.NewDecoder(resp.Body).Decode(res); err != nil {
		return nil, fmt.Errorf("ragdex: decode health: %w", err)
	}
	return res, nil
}

func (c *Client) observe(endpoint string, start time.Time, err *error) {
	c.obs.observe(endpoint, start, *err)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// call sends a JSON request and decodes a 200 response into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ragdex: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("ragdex: encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("ragdex: build %s: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ragdex: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// readAPIError turns a non-2xx response into *APIError. Bodies that are not the
// server's JSON error shape (proxies, load balancers) are kept as the message.
func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Stage     string `json:"stage"`
		Workspace string `json:"workspace"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Code != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		apiErr.Stage = body.Stage
		apiErr.Workspace = body.Workspace
	} else {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		apiErr.Message = msg
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}
