package connection

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Defaults for zero BackoffConfig fields.
const (
	InitialBackoff    = 250 * time.Millisecond
	MaxBackoff        = 5 * time.Second
	BackoffMultiplier = 2.0
	JitterFactor      = 0.25
)

// BackoffConfig customizes a Backoff. Zero fields take the defaults.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter is the largest random addition, as a fraction of the base
	// delay. A negative value disables jitter.
	Jitter float64
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	c.Max = max(c.Max, c.Initial)
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	if c.Jitter == 0 {
		c.Jitter = JitterFactor
	}
	c.Jitter = max(c.Jitter, 0)
	return c
}

// Backoff hands out exponentially growing redial delays, capped at Max.
// It is safe for concurrent use.
type Backoff struct {
	cfg BackoffConfig

	mu       sync.Mutex
	base     time.Duration
	attempts int
}

func NewBackoff(cfg BackoffConfig) *Backoff {
	cfg = cfg.withDefaults()
	return &Backoff{cfg: cfg, base: cfg.Initial}
}

// Next returns the delay before the next attempt and advances the base.
// The delay lies in [base, base*(1+Jitter)].
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.base
	if b.cfg.Jitter > 0 {
		d += time.Duration(rand.Float64() * b.cfg.Jitter * float64(d))
	}
	b.attempts++
	b.base = min(time.Duration(float64(b.base)*b.cfg.Multiplier), b.cfg.Max)
	return d
}

// Reset starts over from Initial.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.base, b.attempts = b.cfg.Initial, 0
}

// Attempts returns how many delays Next has handed out since the last
// Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the unjittered delay Next will start from.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base
}
