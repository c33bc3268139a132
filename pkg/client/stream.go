package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// maxEventSize bounds one SSE data line; the done event carries every source text.
const maxEventSize = 4 << 20

var errStreamTruncated = errors.New("ragdex: stream ended without a done event")

// EventFunc receives each token event of a stream. Returning an error stops reading
// and closes the connection, which cancels generation on the server.
type EventFunc func(ev StreamEvent) error

// QueryStream asks a question and delivers the answer token by token. It returns the
// terminal done event. A terminal error event is returned as *APIError with
// StatusCode 200.
func (c *Client) QueryStream(ctx context.Context, req QueryRequest, fn EventFunc) (final *StreamEvent, err error) {
	defer c.observe("query_stream", time.Now(), &err)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	body := struct {
		QueryRequest
		Stream bool `json:"stream"`
	}{QueryRequest: req, Stream: true}

	resp, err := c.send(ctx, http.MethodPost, "/query", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return nil, fmt.Errorf("ragdex: unexpected stream content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data:")
		if !ok {
			continue
		}
		var ev StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
			return nil, fmt.Errorf("ragdex: decode stream event: %w", err)
		}

		switch ev.Type {
		case EventDone:
			return &ev, nil
		case EventError:
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Code:       ev.Code,
				Message:    ev.Error,
				Stage:      ev.Stage,
			}
		default:
			if fn != nil {
				if err := fn(ev); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ragdex: read stream: %w", err)
	}
	return nil, errStreamTruncated
}
