package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	readyFirstPause = 50 * time.Millisecond
	readyMaxPause   = time.Second
)

// WaitReady calls ping until it succeeds, doubling the pause between attempts up to a second.
// On timeout the returned error carries both the deadline and the last ping failure.
func WaitReady(ctx context.Context, timeout time.Duration, backend string, ping func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pause := readyFirstPause
	var lastErr error
	for {
		if lastErr = ping(ctx); lastErr == nil {
			return nil
		}

		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s not ready after %s: %w", backend, timeout, errors.Join(ctx.Err(), lastErr))
		case <-t.C:
		}
		pause = min(pause*2, readyMaxPause)
	}
}
