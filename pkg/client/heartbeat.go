package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Heartbeat defaults
const (
	DefaultHeartbeatInterval = 5 * time.Minute
	DefaultMaxFailures       = 3
)

// Reasons passed to OnFail
const (
	ReasonLicenseInvalid = "The license is no longer valid."
	ReasonUnreachable    = "Cannot reach the license server."
)

// HeartbeatOptions configures a HeartbeatTask
type HeartbeatOptions struct {
	Interval    time.Duration
	MaxFailures int
	// Timeout bounds a single heartbeat call; defaults to Interval
	Timeout time.Duration
	// OnFail runs once, after MaxFailures consecutive failures stopped the task
	OnFail func(reason string)
	Logger *slog.Logger
}

// HeartbeatTask sends a heartbeat every interval. It owns its failure count
// and stops itself after MaxFailures consecutive failures.
type HeartbeatTask struct {
	client *Client
	token  string
	opts   HeartbeatOptions
	logger *slog.Logger

	mu       sync.Mutex
	failures int
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewHeartbeatTask creates a task for a session token
func NewHeartbeatTask(client *Client, token string, opts HeartbeatOptions) *HeartbeatTask {
	if opts.Interval <= 0 {
		opts.Interval = DefaultHeartbeatInterval
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.Interval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HeartbeatTask{
		client: client,
		token:  token,
		opts:   opts,
		logger: logger.With("component", "heartbeat"),
	}
}

// Start begins sending heartbeats until ctx ends, Stop is called, or the
// failure limit is reached. Starting a running task restarts it with the
// failure count reset.
func (t *HeartbeatTask) Start(ctx context.Context) {
	t.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.failures = 0
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go t.run(ctx, done)
}

// Stop halts the task and waits for it to exit. It is safe to call more than once.
func (t *HeartbeatTask) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Failures returns the current count of consecutive failures
func (t *HeartbeatTask) Failures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures
}

func (t *HeartbeatTask) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reason, exhausted := t.beat(ctx)
		if !exhausted {
			continue
		}

		t.mu.Lock()
		if t.done == done {
			t.cancel, t.done = nil, nil
		}
		t.mu.Unlock()

		if t.opts.OnFail != nil {
			t.opts.OnFail(reason)
		}
		return
	}
}

// beat sends one heartbeat and reports whether the failure limit was reached
func (t *HeartbeatTask) beat(ctx context.Context) (string, bool) {
	callCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	err := t.client.Heartbeat(callCtx, t.token)
	cancel()

	if ctx.Err() != nil {
		return "", false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		t.failures = 0
		return "", false
	}

	t.failures++
	reason := ReasonUnreachable
	if errors.Is(err, ErrRejected) {
		reason = ReasonLicenseInvalid
	}
	t.logger.Warn("heartbeat failed", "failures", t.failures, "max_failures", t.opts.MaxFailures, "error", err)

	return reason, t.failures >= t.opts.MaxFailures
}
