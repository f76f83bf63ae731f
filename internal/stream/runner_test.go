package stream

import (
	"context"
	"testing"
	"time"
)

func TestRunnerReconnects(t *testing.T) {
	ts := newTestServer(t)

	c := NewClient(ts.wsURL(), time.Second, Handlers{}, nil)
	r := NewRunner(c, 10*time.Millisecond, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	waitFor(t, func() bool { return c.Connected() }, "initial connect")

	// Drop the connection server-side; the runner should dial again.
	ts.latestConn(t).Close()
	waitFor(t, func() bool {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		return len(ts.conns) >= 2
	}, "reconnect")
	waitFor(t, func() bool { return c.Connected() }, "connected after reconnect")
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ts := newTestServer(t)

	c := NewClient(ts.wsURL(), time.Second, Handlers{}, nil)
	r := NewRunner(c, 10*time.Millisecond, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return c.Connected() }, "connect")
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop on cancel")
	}
	if c.Connected() {
		t.Fatalf("client still connected after runner exit")
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	max := 80 * time.Millisecond
	cur := 10 * time.Millisecond
	var seen []time.Duration
	for i := 0; i < 5; i++ {
		cur = nextBackoff(cur, max)
		seen = append(seen, cur)
	}
	want := []time.Duration{20, 40, 80, 80, 80}
	for i, w := range want {
		if seen[i] != w*time.Millisecond {
			t.Fatalf("backoff step %d = %v, want %v", i, seen[i], w*time.Millisecond)
		}
	}
}
