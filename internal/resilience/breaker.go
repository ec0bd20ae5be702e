// Package resilience provides the failure-handling primitives shared by the
// outbound integrations: a three-state circuit breaker for webhook calls and
// a jittered exponential backoff for reconnect loops.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not elapsed.
var ErrOpen = errors.New("resilience: breaker is open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrOpen] until the cooldown elapses.
	BreakerOpen

	// BreakerProbing lets a bounded number of calls through to test whether
	// the dependency has recovered.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields get defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Threshold is the consecutive-failure count that opens the breaker.
	// Default 5.
	Threshold int

	// Cooldown is how long the breaker stays open before probing.
	// Default 30s.
	Cooldown time.Duration

	// ProbeBudget is how many probe calls may run while probing. That many
	// consecutive probe successes close the breaker; any probe failure
	// re-opens it. Default 2.
	ProbeBudget int
}

// Breaker is a consecutive-failure circuit breaker guarding one outbound
// dependency. A tripped breaker fails calls fast so a dead webhook cannot
// stall live calls for its full timeout on every turn.
type Breaker struct {
	name        string
	threshold   int
	cooldown    time.Duration
	probeBudget int
	log         *slog.Logger

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probes   int
	probeOKs int
}

// NewBreaker creates a closed Breaker from cfg.
func NewBreaker(cfg BreakerConfig, log *slog.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 2
	}
	if log == nil {
		log = slog.Default()
	}
	return &Breaker{
		name:        cfg.Name,
		threshold:   cfg.Threshold,
		cooldown:    cfg.Cooldown,
		probeBudget: cfg.ProbeBudget,
		log:         log,
	}
}

// Do runs fn unless the breaker rejects the call. The returned error is fn's
// own error, or [ErrOpen] when the call was rejected without running.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	b.observe(err == nil)
	return err
}

// admit decides whether a call may proceed, advancing open to probing when
// the cooldown has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = BreakerProbing
		b.probes = 0
		b.probeOKs = 0
		b.log.Info("breaker probing", "breaker", b.name)
		fallthrough

	case BreakerProbing:
		if b.probes >= b.probeBudget {
			return ErrOpen
		}
		b.probes++
	}
	return nil
}

// observe records the outcome of an admitted call.
func (b *Breaker) observe(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerProbing:
		if !ok {
			b.trip()
			return
		}
		b.probeOKs++
		if b.probeOKs >= b.probeBudget {
			b.state = BreakerClosed
			b.failures = 0
			b.log.Info("breaker closed", "breaker", b.name)
		}

	case BreakerClosed:
		if !ok {
			b.failures++
			if b.failures >= b.threshold {
				b.trip()
			}
			return
		}
		b.failures = 0
	}
}

// trip opens the breaker. b.mu must be held.
func (b *Breaker) trip() {
	b.state = BreakerOpen
	b.openedAt = time.Now()
	b.failures = b.threshold
	b.log.Warn("breaker opened", "breaker", b.name, "failures", b.failures)
}

// State returns the breaker's current mode. An open breaker whose cooldown
// has elapsed reports probing; the transition itself happens on the next Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	b.probeOKs = 0
}
