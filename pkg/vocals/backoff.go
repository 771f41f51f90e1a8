package vocals

import (
	"math/rand"
	"time"
)

// Backoff produces exponentially growing reconnect delays with jitter, capped
// at Max. It is not safe for concurrent use; each reconnect loop owns one.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64

	current time.Duration
	rand    func() float64
}

// NewBackoff builds a Backoff from the engine's reconnect settings. Values
// out of range fall back to the defaults so reconnects always wait.
func NewBackoff(cfg *EngineConfig) *Backoff {
	defaults := DefaultEngineConfig()
	b := &Backoff{
		Initial: cfg.InitialBackoff,
		Max:     cfg.MaxBackoff,
		Factor:  cfg.BackoffFactor,
		Jitter:  cfg.BackoffJitter,
		rand:    rand.Float64,
	}
	if b.Initial <= 0 {
		b.Initial = defaults.InitialBackoff
	}
	if b.Max <= 0 {
		b.Max = defaults.MaxBackoff
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Factor < 1 {
		b.Factor = defaults.BackoffFactor
	}
	if b.Jitter < 0 || b.Jitter >= 1 {
		b.Jitter = defaults.BackoffJitter
	}
	return b
}

// Next returns the delay before the next attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
	}
	delay := b.current

	if b.Jitter > 0 && b.rand != nil {
		jitter := time.Duration(float64(delay) * b.Jitter * (b.rand()*2 - 1))
		if delay+jitter > 0 {
			delay += jitter
		}
	}
	if delay > b.Max {
		delay = b.Max
	}

	next := time.Duration(float64(b.current) * b.Factor)
	if next > b.Max {
		next = b.Max
	}
	b.current = next
	return delay
}

// Reset restarts the schedule at Initial, after a successful connection.
func (b *Backoff) Reset() {
	b.current = 0
}
