package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/st-keller/objid-poller/types"
	"github.com/st-keller/objid-poller/update"
)

const quietResponse = `{"_news": [], "app-a": {"_log": [], "table": [1]}, "app-b": {"table": [2]}}`

type harness struct {
	enum      *fakeEnumerator
	sinks     *recordingSinks
	refresher *countingRefresher
	calls     atomic.Int32
	poller    *Poller
}

func newHarness(t *testing.T, policy update.Policy, transport transportFunc) *harness {
	t.Helper()
	h := &harness{
		enum: &fakeEnumerator{entities: []types.TrackedEntity{
			{ID: "app-a", Name: "App A", AuthKey: "ka"},
			{ID: "app-b", Name: "App B", AuthKey: "kb"},
		}},
		sinks:     newRecordingSinks(),
		refresher: &countingRefresher{},
	}

	counted := func(ctx context.Context, payload types.PollPayload) (types.PollResponse, error) {
		h.calls.Add(1)
		return transport(ctx, payload)
	}

	p, err := New(Config{
		Enumerator: h.enum,
		Transport:  transportFunc(counted),
		Sinks:      h.sinks.sinks(),
		Refresher:  h.refresher,
		Backoff:    policy,
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Dispose)
	h.poller = p
	return h
}

func respond(t *testing.T, raw string) transportFunc {
	resp := mustResponse(t, raw)
	return func(ctx context.Context, payload types.PollPayload) (types.PollResponse, error) {
		return resp, nil
	}
}

func failing(err error) transportFunc {
	return func(ctx context.Context, payload types.PollPayload) (types.PollResponse, error) {
		return nil, err
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_Validation(t *testing.T) {
	sinks := newRecordingSinks().sinks()
	tr := failing(nil)
	enum := &fakeEnumerator{}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no enumerator", Config{Transport: tr, Sinks: sinks}},
		{"no transport", Config{Enumerator: enum, Sinks: sinks}},
		{"no sinks", Config{Enumerator: enum, Transport: tr}},
		{"bad policy", Config{Enumerator: enum, Transport: tr, Sinks: sinks, Backoff: update.Policy{Growth: 0.1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunCycle_FailureEqualsNoChange(t *testing.T) {
	failed := newHarness(t, update.DefaultPolicy(), failing(errors.New("connection refused")))
	empty := newHarness(t, update.DefaultPolicy(), failing(nil))
	quiet := newHarness(t, update.DefaultPolicy(), respond(t, quietResponse))

	want := 18750 * time.Millisecond
	for name, h := range map[string]*harness{"failed": failed, "no result": empty, "quiet": quiet} {
		if got := h.poller.runCycle(); got != want {
			t.Errorf("%s: next interval = %s, want %s", name, got, want)
		}
	}

	if got := failed.poller.Status().LastOutcome; got != OutcomeUnavailable {
		t.Errorf("failed outcome = %q", got)
	}
	if got := quiet.poller.Status().LastOutcome; got != OutcomeUnchanged {
		t.Errorf("quiet outcome = %q", got)
	}
}

func TestRunCycle_PayloadCarriesAllApps(t *testing.T) {
	var got types.PollPayload
	h := newHarness(t, update.DefaultPolicy(), func(ctx context.Context, payload types.PollPayload) (types.PollResponse, error) {
		got = payload
		return nil, nil
	})
	h.poller.runCycle()

	if len(got) != 2 || got[0] != (types.AppAuthorization{AppID: "app-a", AuthKey: "ka"}) {
		t.Errorf("payload = %+v", got)
	}
}

func TestRunCycle_NewsOnlyResetsWithoutRefresh(t *testing.T) {
	fail := true
	resp := mustResponse(t, quietResponse)
	h := newHarness(t, update.DefaultPolicy(), func(ctx context.Context, payload types.PollPayload) (types.PollResponse, error) {
		if fail {
			return nil, errors.New("timeout")
		}
		return resp, nil
	})

	h.poller.runCycle()
	h.poller.runCycle()

	fail = false
	h.sinks.newsResult = true
	if got := h.poller.runCycle(); got != 15*time.Second {
		t.Errorf("interval after news change = %s, want 15s", got)
	}
	if n := h.refresher.Count(); n != 0 {
		t.Errorf("refresh called %d times for news-only change", n)
	}
	if s := h.poller.Status(); s.LastOutcome != OutcomeChanged || s.LastRefresh {
		t.Errorf("status = %+v", s)
	}
}

func TestRunCycle_ConsumptionRefreshesOncePerCycle(t *testing.T) {
	h := newHarness(t, update.DefaultPolicy(), respond(t, quietResponse))
	h.sinks.consumptionResult["app-a"] = true
	h.sinks.consumptionResult["app-b"] = true

	if got := h.poller.runCycle(); got != 15*time.Second {
		t.Errorf("interval = %s, want 15s", got)
	}
	if n := h.refresher.Count(); n != 1 {
		t.Errorf("refresh called %d times, want 1", n)
	}

	h.poller.runCycle()
	if n := h.refresher.Count(); n != 2 {
		t.Errorf("refresh called %d times after two cycles, want 2", n)
	}
}

func TestRunCycle_LogOnlyResetsWithoutRefresh(t *testing.T) {
	h := newHarness(t, update.DefaultPolicy(), respond(t, quietResponse))
	h.poller.runCycle()

	h.sinks.logResult["app-b"] = true
	if got := h.poller.runCycle(); got != 15*time.Second {
		t.Errorf("interval = %s, want 15s", got)
	}
	if n := h.refresher.Count(); n != 0 {
		t.Errorf("refresh called %d times for log-only change", n)
	}
	if got := h.sinks.logNames["app-b"]; got != "App B" {
		t.Errorf("log sink got app name %q, want App B", got)
	}
}

func TestRunCycle_EmptyPayloadSkipsCall(t *testing.T) {
	h := newHarness(t, update.DefaultPolicy(), failing(errors.New("down")))

	elevated := h.poller.runCycle()
	h.enum.mu.Lock()
	h.enum.entities = nil
	h.enum.mu.Unlock()

	if got := h.poller.runCycle(); got != elevated {
		t.Errorf("empty payload changed interval: %s -> %s", elevated, got)
	}
	if n := h.calls.Load(); n != 1 {
		t.Errorf("transport called %d times, want 1", n)
	}
	if got := h.poller.Status().LastOutcome; got != OutcomeSkipped {
		t.Errorf("outcome = %q, want skipped", got)
	}
}

func TestRunCycle_PanicIsContained(t *testing.T) {
	h := newHarness(t, update.DefaultPolicy(), func(ctx context.Context, payload types.PollPayload) (types.PollResponse, error) {
		panic("boom")
	})

	if got := h.poller.runCycle(); got != 18750*time.Millisecond {
		t.Errorf("interval = %s, want 18.75s", got)
	}
	if got := h.poller.Status().LastOutcome; got != OutcomeFailed {
		t.Errorf("outcome = %q, want failed", got)
	}
}

func TestRunCycle_ErrorsCountAsNoChange(t *testing.T) {
	t.Run("enumerator", func(t *testing.T) {
		h := newHarness(t, update.DefaultPolicy(), respond(t, quietResponse))
		h.enum.err = errors.New("workspace gone")
		if got := h.poller.runCycle(); got != 18750*time.Millisecond {
			t.Errorf("interval = %s", got)
		}
		if h.calls.Load() != 0 {
			t.Error("transport called after enumeration failure")
		}
	})

	t.Run("malformed response", func(t *testing.T) {
		h := newHarness(t, update.DefaultPolicy(), respond(t, `{"app-a": {"table": "oops"}}`))
		h.sinks.consumptionResult["app-a"] = true
		if got := h.poller.runCycle(); got != 18750*time.Millisecond {
			t.Errorf("interval = %s", got)
		}
		if h.refresher.Count() != 0 {
			t.Error("refresh after malformed response")
		}
		if got := h.poller.Status().LastOutcome; got != OutcomeFailed {
			t.Errorf("outcome = %q", got)
		}
	})
}

func TestRunCycle_AfterDisposeIsNoop(t *testing.T) {
	h := newHarness(t, update.DefaultPolicy(), respond(t, quietResponse))
	h.poller.Dispose()

	h.poller.runCycle()
	if n := h.calls.Load(); n != 0 {
		t.Errorf("transport called %d times after dispose", n)
	}
}

func TestStart_RunsImmediatelyAndRepeats(t *testing.T) {
	policy := update.Policy{Default: 5 * time.Millisecond, Max: 10 * time.Millisecond, Growth: 2}
	h := newHarness(t, policy, respond(t, quietResponse))

	if err := h.poller.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "three cycles", func() bool { return h.calls.Load() >= 3 })

	if s := h.poller.Status(); !s.Started || s.Interval != 10*time.Millisecond {
		t.Errorf("status = %+v", s)
	}
}

func TestStart_Twice(t *testing.T) {
	h := newHarness(t, update.DefaultPolicy(), respond(t, quietResponse))
	if err := h.poller.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.poller.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestStart_AfterDispose(t *testing.T) {
	h := newHarness(t, update.DefaultPolicy(), respond(t, quietResponse))
	h.poller.Dispose()
	h.poller.Dispose()

	if err := h.poller.Start(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Start after Dispose = %v, want ErrDisposed", err)
	}
	if !h.poller.Status().Disposed {
		t.Error("status not disposed")
	}
}

func TestCycles_NeverOverlap(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	resp := mustResponse(t, quietResponse)

	policy := update.Policy{Default: time.Millisecond, Max: 2 * time.Millisecond, Growth: 2}
	h := newHarness(t, policy, func(ctx context.Context, payload types.PollPayload) (types.PollResponse, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond) // far longer than the interval
		inFlight.Add(-1)
		return resp, nil
	})

	if err := h.poller.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "four cycles", func() bool { return h.calls.Load() >= 4 })

	if m := maxInFlight.Load(); m != 1 {
		t.Errorf("max concurrent checks = %d, want 1", m)
	}
}

func TestDispose_CancelsArmedTimer(t *testing.T) {
	policy := update.Policy{Default: 20 * time.Millisecond, Max: 40 * time.Millisecond, Growth: 2}
	h := newHarness(t, policy, respond(t, quietResponse))

	if err := h.poller.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "first cycle", func() bool { return h.poller.Status().Cycles == 1 })
	h.poller.Dispose()

	time.Sleep(120 * time.Millisecond)
	if n := h.calls.Load(); n != 1 {
		t.Errorf("transport called %d times, want 1", n)
	}
}

func TestDispose_InFlightCycleFinishesWithoutRearm(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	resp := mustResponse(t, quietResponse)
	var once sync.Once

	policy := update.Policy{Default: time.Millisecond, Max: 2 * time.Millisecond, Growth: 2}
	h := newHarness(t, policy, func(ctx context.Context, payload types.PollPayload) (types.PollResponse, error) {
		once.Do(func() { close(entered) })
		<-release
		return resp, nil
	})
	h.sinks.consumptionResult["app-a"] = true

	if err := h.poller.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-entered
	h.poller.Dispose()
	close(release)

	waitFor(t, "in-flight cycle to finish", func() bool { return h.poller.Status().Cycles == 1 })
	time.Sleep(30 * time.Millisecond)

	if n := h.refresher.Count(); n != 1 {
		t.Errorf("refresh called %d times, want 1 from the in-flight cycle", n)
	}
	if n := h.calls.Load(); n != 1 {
		t.Errorf("transport called %d times after dispose, want 1", n)
	}
}
