package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusServer(t *testing.T, status *atomic.Int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		code := int(status.Load())
		w.WriteHeader(code)
		if code == http.StatusOK {
			w.Write([]byte(`{"valid":true}`))
			return
		}
		w.Write([]byte(`{"valid":false,"reason":"key_revoked"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHeartbeatTask_StopsAfterMaxFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason string
	}{
		{"rejected", http.StatusForbidden, ReasonLicenseInvalid},
		{"server error", http.StatusInternalServerError, ReasonUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var status, calls atomic.Int32
			status.Store(int32(tt.status))
			srv := statusServer(t, &status, &calls)

			failed := make(chan string, 1)
			task := NewHeartbeatTask(New(srv.URL), "tok", HeartbeatOptions{
				Interval:    5 * time.Millisecond,
				MaxFailures: 3,
				OnFail:      func(reason string) { failed <- reason },
			})
			task.Start(context.Background())

			select {
			case reason := <-failed:
				assert.Equal(t, tt.reason, reason)
			case <-time.After(5 * time.Second):
				t.Fatal("OnFail was not called")
			}

			assert.Equal(t, 3, task.Failures())
			assert.Equal(t, int32(3), calls.Load())

			// Already stopped itself
			task.Stop()
		})
	}
}

func TestHeartbeatTask_SuccessResetsFailures(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := statusServer(t, &status, &calls)

	task := NewHeartbeatTask(New(srv.URL), "tok", HeartbeatOptions{
		Interval:    5 * time.Millisecond,
		MaxFailures: 1000,
		OnFail:      func(string) { t.Error("OnFail must not be called") },
	})
	task.Start(context.Background())
	defer task.Stop()

	require.Eventually(t, func() bool { return task.Failures() >= 2 }, 5*time.Second, time.Millisecond)

	status.Store(http.StatusOK)
	require.Eventually(t, func() bool { return task.Failures() == 0 }, 5*time.Second, time.Millisecond)
}

func TestHeartbeatTask_StopAndRestart(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusOK)
	srv := statusServer(t, &status, &calls)

	task := NewHeartbeatTask(New(srv.URL), "tok", HeartbeatOptions{Interval: 5 * time.Millisecond})
	task.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, time.Millisecond)

	task.Stop()
	task.Stop()
	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "no heartbeats after Stop")

	task.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() > stopped }, 5*time.Second, time.Millisecond)
	task.Stop()
}

func TestHeartbeatTask_ContextCancel(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusOK)
	srv := statusServer(t, &status, &calls)

	ctx, cancel := context.WithCancel(context.Background())
	task := NewHeartbeatTask(New(srv.URL), "tok", HeartbeatOptions{Interval: 5 * time.Millisecond})
	task.Start(ctx)
	cancel()

	// Stop still returns once the loop has seen the cancellation
	task.Stop()
	assert.Zero(t, task.Failures())
}

func TestNewHeartbeatTask_Defaults(t *testing.T) {
	task := NewHeartbeatTask(New("http://localhost"), "tok", HeartbeatOptions{})
	assert.Equal(t, DefaultHeartbeatInterval, task.opts.Interval)
	assert.Equal(t, DefaultMaxFailures, task.opts.MaxFailures)
	assert.Equal(t, DefaultHeartbeatInterval, task.opts.Timeout)
}
