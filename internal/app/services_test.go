package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-io/cdk-extensions-sub001/internal/config"
	"github.com/vibe-io/cdk-extensions-sub001/internal/eventbus"
	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
	"github.com/vibe-io/cdk-extensions-sub001/internal/resource"
	"github.com/vibe-io/cdk-extensions-sub001/internal/runner"
)

func TestHealthEndpoints(t *testing.T) {
	cfg, err := config.Parse([]byte("healthcheck:\n  enabled: true\n"))
	require.NoError(t, err)
	h := NewHealthService(cfg)
	handler := h.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready").Code)

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, get("/ready").Code)

	metrics := get("/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "go_goroutines")
}

type fakeExecutor struct {
	mu   sync.Mutex
	reqs []runner.Request
}

func (f *fakeExecutor) RunOne(_ context.Context, req runner.Request) runner.Result {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return runner.Result{
		RunID:   req.RunID,
		Target:  req.Target.Name,
		Action:  req.Action,
		Outcome: reconcile.Outcome[resource.Snapshot]{Kind: reconcile.OutcomeSuccess},
	}
}

func TestRunServiceExecutesRequests(t *testing.T) {
	bus := eventbus.NewWithConfig(2, 10)
	exec := &fakeExecutor{}
	NewRunService(exec, bus).Register(context.Background())

	finished := make(chan runner.Result, 1)
	bus.Subscribe(eventbus.EventTypeRunFinished, func(e eventbus.Event) {
		finished <- e.Payload.(runner.Result)
	})

	req := runner.Request{
		Target: resource.Target{Name: "web", Kind: resource.KindEC2Instance, ID: "i-1"},
		Action: resource.ActionStop,
		RunID:  "run-1",
	}
	require.True(t, bus.Publish(eventbus.Event{Type: eventbus.EventTypeRunRequested, ID: req.RunID, Payload: req}))

	select {
	case res := <-finished:
		assert.Equal(t, "run-1", res.RunID)
		assert.True(t, res.Succeeded())
	case <-time.After(time.Second):
		t.Fatal("run was not executed")
	}

	// Payloads of the wrong type are ignored.
	require.True(t, bus.Publish(eventbus.Event{Type: eventbus.EventTypeRunRequested, Payload: "junk"}))

	bus.Close(context.Background())
	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.Len(t, exec.reqs, 1)
}

type countingPruner struct {
	mu        sync.Mutex
	calls     int
	retention time.Duration
}

func (p *countingPruner) DeleteOlderThan(_ context.Context, retention time.Duration) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.retention = retention
	return 1, nil
}

func (p *countingPruner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestRetentionServicePrunes(t *testing.T) {
	cfg, err := config.Parse([]byte("ledger:\n  retention_days: 7\n  cleanup_interval: 10ms\n"))
	require.NoError(t, err)

	p := &countingPruner{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	NewRetentionService(cfg, p).Start(ctx)

	require.Eventually(t, func() bool { return p.count() >= 2 }, time.Second, 5*time.Millisecond)
	p.mu.Lock()
	assert.Equal(t, 7*24*time.Hour, p.retention)
	p.mu.Unlock()
}

func TestRetentionServiceDisabled(t *testing.T) {
	cfg, err := config.Parse([]byte("ledger:\n  retention_days: -1\n"))
	require.NoError(t, err)

	p := &countingPruner{}
	NewRetentionService(cfg, p).Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, p.count())
}
