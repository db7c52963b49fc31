package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/st-keller/objid-poller/registry"
	"github.com/st-keller/objid-poller/types"
	"github.com/st-keller/objid-poller/update"
)

// Outcome describes how a cycle ended.
type Outcome string

const (
	OutcomeNone        Outcome = ""            // no cycle ran yet
	OutcomeChanged     Outcome = "changed"     // at least one sink changed
	OutcomeUnchanged   Outcome = "unchanged"   // check succeeded, nothing changed
	OutcomeUnavailable Outcome = "unavailable" // transport failed or returned nothing
	OutcomeSkipped     Outcome = "skipped"     // no eligible apps, no call made
	OutcomeFailed      Outcome = "failed"      // error or panic inside the cycle
)

// Config holds the poller's collaborators. Everything except Logger and
// Refresher is required.
type Config struct {
	Enumerator types.Enumerator
	Transport  types.Transport
	Sinks      Sinks
	Refresher  types.Refresher // optional, signalled on consumption changes
	Backoff    update.Policy   // zero value = 15s / 15m / x1.25
	Logger     *slog.Logger
}

// Validate checks if all required collaborators are present.
func (c Config) Validate() error {
	if c.Enumerator == nil {
		return fmt.Errorf("Enumerator required")
	}
	if c.Transport == nil {
		return fmt.Errorf("Transport required")
	}
	if err := c.Sinks.validate(); err != nil {
		return err
	}
	return c.Backoff.Validate()
}

// Status is a point-in-time view of the poller.
type Status struct {
	Started     bool          `json:"started"`
	Disposed    bool          `json:"disposed"`
	Interval    time.Duration `json:"interval_ns"`
	Cycles      int           `json:"cycles"`
	LastCycleAt time.Time     `json:"last_cycle_at"`
	LastOutcome Outcome       `json:"last_outcome"`
	LastRefresh bool          `json:"last_refresh"`
	Apps        int           `json:"apps"`
}

// Poller is the self-rearming polling loop.
//
// Cycles never overlap: the timer for the next cycle is armed only after the
// current cycle has fully completed, including the network call.
type Poller struct {
	builder   *registry.Builder
	transport types.Transport
	demux     *Demultiplexer
	refresher types.Refresher
	logger    *slog.Logger
	ctx       context.Context

	// backoff is touched only by the cycle goroutine.
	backoff *update.Backoff

	mu       sync.Mutex
	started  bool
	disposed bool
	timer    *time.Timer
	status   Status
}

// New creates a Poller. It does not start polling.
func New(cfg Config) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	builder, err := registry.New(cfg.Enumerator)
	if err != nil {
		return nil, err
	}
	demux, err := NewDemultiplexer(cfg.Sinks, builder.Name)
	if err != nil {
		return nil, err
	}
	backoff, err := update.NewBackoff(cfg.Backoff)
	if err != nil {
		return nil, err
	}

	return &Poller{
		builder:   builder,
		transport: cfg.Transport,
		demux:     demux,
		refresher: cfg.Refresher,
		logger:    cfg.Logger,
		ctx:       context.Background(),
		backoff:   backoff,
		status:    Status{Interval: backoff.Current()},
	}, nil
}

// Builder returns the request builder, e.g. to resolve app names.
func (p *Poller) Builder() *registry.Builder {
	return p.builder
}

// Start runs the first cycle immediately (on its own goroutine) and keeps
// polling until Dispose.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return ErrDisposed
	}
	if p.started {
		return ErrAlreadyStarted
	}

	p.started = true
	p.status.Started = true
	p.timer = time.AfterFunc(0, p.onTimerFire)

	p.logger.Info("poller started",
		"default_interval", p.backoff.Policy().Default.String(),
		"max_interval", p.backoff.Policy().Max.String(),
	)
	return nil
}

// Dispose stops polling. A pending timer is cancelled; a cycle already in
// flight completes its side effects but does not rearm. Safe to call more
// than once.
func (p *Poller) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return
	}

	p.disposed = true
	p.status.Disposed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}

	p.logger.Info("poller disposed", "cycles", p.status.Cycles)
}

// Status returns a snapshot of the poller state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) isDisposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// onTimerFire runs one cycle and rearms the timer.
func (p *Poller) onTimerFire() {
	if p.isDisposed() {
		return
	}

	next := p.runCycle()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return
	}
	p.timer = time.AfterFunc(next, p.onTimerFire)
}

// cycleResult is what check hands back to runCycle.
type cycleResult struct {
	outcome Outcome
	refresh bool
	apps    int
}

// runCycle executes one cycle and returns the interval until the next one.
// It never panics and never returns an error: every failure is logged here
// and treated as "no change".
func (p *Poller) runCycle() time.Duration {
	if p.isDisposed() {
		return p.backoff.Current()
	}

	logger := p.logger.With("cycle_id", uuid.NewString())
	started := time.Now()

	result, err := p.check(logger)
	if err != nil {
		logger.Error("polling check failed", "error", err)
		result.outcome = OutcomeFailed
	}

	var next time.Duration
	switch result.outcome {
	case OutcomeSkipped:
		next = p.backoff.Current()
	case OutcomeChanged:
		next = p.backoff.Next(true)
	default:
		next = p.backoff.Next(false)
	}

	logger.Debug("polling cycle completed",
		"outcome", string(result.outcome),
		"apps", result.apps,
		"refresh", result.refresh,
		"duration_ms", time.Since(started).Milliseconds(),
		"next_interval", next.String(),
	)

	p.mu.Lock()
	p.status.Cycles++
	p.status.LastCycleAt = started
	p.status.LastOutcome = result.outcome
	p.status.LastRefresh = result.refresh
	p.status.Interval = next
	if result.outcome != OutcomeFailed {
		p.status.Apps = result.apps
	}
	p.mu.Unlock()

	return next
}

// check is the body of a cycle. Panics from collaborators are recovered
// and returned as ErrCyclePanic.
func (p *Poller) check(logger *slog.Logger) (result cycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCyclePanic, r)
		}
	}()

	payload, err := p.builder.Build(p.ctx)
	if err != nil {
		return cycleResult{}, fmt.Errorf("failed to build payload: %w", err)
	}
	if len(payload) == 0 {
		return cycleResult{outcome: OutcomeSkipped}, nil
	}
	result.apps = len(payload)

	resp, err := p.transport.CheckBatch(p.ctx, payload)
	if err != nil || resp == nil {
		// Transient by definition: slows polling down, nothing more.
		logger.Info("backend check returned no result", "apps", len(payload), "error", err)
		result.outcome = OutcomeUnavailable
		return result, nil
	}

	changes, err := p.demux.Apply(resp)
	if err != nil {
		return result, fmt.Errorf("failed to apply check response: %w", err)
	}

	if changes.ConsumptionChange && p.refresher != nil {
		p.refresher.Refresh()
		result.refresh = true
	}

	if changes.AnyChange {
		result.outcome = OutcomeChanged
	} else {
		result.outcome = OutcomeUnchanged
	}
	return result, nil
}
