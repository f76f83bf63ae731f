package stream

import (
	"context"
	"log/slog"
	"time"
)

// Runner supervises a Client, redialing with exponential backoff after
// unexpected closes. Backoff doubles from initial up to max and resets on a
// successful open.
type Runner struct {
	client  *Client
	initial time.Duration
	max     time.Duration
	logger  *slog.Logger
}

func NewRunner(client *Client, initial, max time.Duration, logger *slog.Logger) *Runner {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = 30 * time.Second
	}
	return &Runner{client: client, initial: initial, max: max, logger: logger}
}

// Run blocks until ctx is cancelled, keeping the stream connected. The
// client is closed on the way out, which stops its keep-alive ticker.
func (r *Runner) Run(ctx context.Context) {
	defer r.client.Close()
	backoff := r.initial
	for {
		if err := r.client.Connect(ctx); err != nil {
			if r.logger != nil {
				r.logger.Warn("stream dial failed", "err", err, "retry_in", backoff)
			}
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, r.max)
			continue
		}
		backoff = r.initial
		if !r.waitClosed(ctx) {
			return
		}
		if !sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, r.max)
	}
}

// waitClosed blocks until the live connection drops or ctx is cancelled.
// Returns false when the runner should exit.
func (r *Runner) waitClosed(ctx context.Context) bool {
	r.client.mu.Lock()
	done := r.client.done
	r.client.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
