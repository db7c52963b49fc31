// Package update implements the adaptive polling interval.
package update

import (
	"fmt"
	"time"
)

// Default polling policy.
const (
	DefaultInterval = 15 * time.Second
	MaxInterval     = 15 * time.Minute
	DefaultGrowth   = 1.25
)

// Policy configures the backoff. Zero fields take the defaults above.
type Policy struct {
	Default time.Duration // interval after observed activity
	Min     time.Duration // floor, defaults to Default
	Max     time.Duration // ceiling
	Growth  float64       // multiplier applied on every quiet cycle
}

// DefaultPolicy returns the 15s / 15m / x1.25 policy.
func DefaultPolicy() Policy {
	return Policy{
		Default: DefaultInterval,
		Min:     DefaultInterval,
		Max:     MaxInterval,
		Growth:  DefaultGrowth,
	}
}

// withDefaults fills zero fields.
func (p Policy) withDefaults() Policy {
	if p.Default == 0 {
		p.Default = DefaultInterval
	}
	if p.Min == 0 {
		p.Min = p.Default
	}
	if p.Max == 0 {
		p.Max = MaxInterval
	}
	if p.Growth == 0 {
		p.Growth = DefaultGrowth
	}
	return p
}

// Validate checks the policy after defaults are applied.
func (p Policy) Validate() error {
	p = p.withDefaults()
	if p.Default < 0 {
		return fmt.Errorf("Default must be > 0")
	}
	if p.Min < 0 || p.Min > p.Default {
		return fmt.Errorf("Min must be in (0, Default], got %s", p.Min)
	}
	if p.Max < p.Default {
		return fmt.Errorf("Max (%s) must be >= Default (%s)", p.Max, p.Default)
	}
	if p.Growth < 1 {
		return fmt.Errorf("Growth must be >= 1, got %v", p.Growth)
	}
	return nil
}

// Backoff tracks the current polling interval. It resets to Default after a
// cycle that observed changes and grows geometrically otherwise, always
// clamped to [Min, Max].
//
// Backoff is not safe for concurrent use; the poller mutates it only from
// its cycle goroutine.
type Backoff struct {
	policy  Policy
	current time.Duration
}

// NewBackoff creates a Backoff at the policy's default interval.
func NewBackoff(policy Policy) (*Backoff, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backoff policy: %w", err)
	}
	policy = policy.withDefaults()
	return &Backoff{policy: policy, current: policy.Default}, nil
}

// Next records a cycle result and returns the interval until the next cycle.
func (b *Backoff) Next(anyChange bool) time.Duration {
	if anyChange {
		b.current = b.policy.Default
		return b.current
	}

	next := time.Duration(float64(b.current) * b.policy.Growth)
	b.current = b.clamp(next)
	return b.current
}

// Current returns the interval without recording a result.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// Policy returns the effective policy.
func (b *Backoff) Policy() Policy {
	return b.policy
}

func (b *Backoff) clamp(d time.Duration) time.Duration {
	// A negative value means the multiplication overflowed.
	if d < 0 || d > b.policy.Max {
		return b.policy.Max
	}
	if d < b.policy.Min {
		return b.policy.Min
	}
	return d
}
