package poller

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/st-keller/objid-poller/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEnumerator struct {
	mu       sync.Mutex
	entities []types.TrackedEntity
	err      error
}

func (f *fakeEnumerator) ListEligibleEntities(ctx context.Context) ([]types.TrackedEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entities, f.err
}

type transportFunc func(ctx context.Context, payload types.PollPayload) (types.PollResponse, error)

func (f transportFunc) CheckBatch(ctx context.Context, payload types.PollPayload) (types.PollResponse, error) {
	return f(ctx, payload)
}

// recordingSinks returns fixed results and records every call.
type recordingSinks struct {
	mu                sync.Mutex
	newsResult        bool
	consumptionResult map[string]bool
	logResult         map[string]bool

	newsCalls        []types.NewsUpdate
	consumptionCalls map[string]types.ConsumptionMap
	logCalls         map[string][]types.LogEntry
	logNames         map[string]string
}

func newRecordingSinks() *recordingSinks {
	return &recordingSinks{
		consumptionResult: map[string]bool{},
		logResult:         map[string]bool{},
		consumptionCalls:  map[string]types.ConsumptionMap{},
		logCalls:          map[string][]types.LogEntry{},
		logNames:          map[string]string{},
	}
}

func (r *recordingSinks) UpdateNews(news types.NewsUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.newsCalls = append(r.newsCalls, news)
	return r.newsResult
}

func (r *recordingSinks) UpdateConsumption(appID string, consumption types.ConsumptionMap) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumptionCalls[appID] = consumption
	return r.consumptionResult[appID]
}

func (r *recordingSinks) UpdateLog(appID string, entries []types.LogEntry, appName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logCalls[appID] = entries
	r.logNames[appID] = appName
	return r.logResult[appID]
}

func (r *recordingSinks) sinks() Sinks {
	return Sinks{News: r, Consumption: r, Log: r}
}

type countingRefresher struct {
	mu    sync.Mutex
	count int
}

func (c *countingRefresher) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}

func (c *countingRefresher) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// mustResponse decodes a JSON object into a PollResponse.
func mustResponse(t *testing.T, raw string) types.PollResponse {
	t.Helper()
	var resp types.PollResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("bad test response: %v", err)
	}
	return resp
}
