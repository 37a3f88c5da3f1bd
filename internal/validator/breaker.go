package validator

import (
	"sync"
	"time"
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type BreakerConfig struct {
	// FailureThreshold failures within the last WindowSize outcomes open
	// the breaker.
	FailureThreshold int
	WindowSize       int
	// CoolDown is how long an open breaker short-circuits before probing.
	CoolDown time.Duration
	// HalfOpenProbes bounds how many trial calls pass through while
	// half-open.
	HalfOpenProbes int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.WindowSize < c.FailureThreshold {
		c.WindowSize = c.FailureThreshold * 4
	}
	if c.CoolDown <= 0 {
		c.CoolDown = 30 * time.Second
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = 1
	}
	return c
}

// Breaker is an explicit closed/open/half-open state machine over a sliding
// window of call outcomes. It carries no RPC knowledge; callers report
// outcomes through RecordSuccess/RecordFailure.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    BreakerState
	window   []bool // true = failure
	idx      int
	filled   int
	failures int
	openedAt time.Time
	probes   int

	onTransition func(from, to BreakerState)
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg = cfg.withDefaults()
	return &Breaker{
		cfg:    cfg,
		now:    time.Now,
		window: make([]bool, cfg.WindowSize),
	}
}

// OnTransition registers an observer for state changes. Must be set before
// the breaker is shared.
func (b *Breaker) OnTransition(fn func(from, to BreakerState)) {
	b.onTransition = fn
}

// Allow reports whether a call may go through right now. While half-open it
// also reserves one of the bounded probe slots.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.CoolDown {
			return false
		}
		b.transition(StateHalfOpen)
		b.probes = 0
		fallthrough
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return false
		}
		b.probes++
		return true
	default:
		return false
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.transition(StateClosed)
		b.resetWindow()
	case StateClosed:
		b.push(false)
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trip()
	case StateClosed:
		b.push(true)
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ForceOpen trips the breaker immediately, used operationally and in tests.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.transition(StateOpen)
	b.openedAt = b.now()
	b.probes = 0
	b.resetWindow()
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}

func (b *Breaker) push(failure bool) {
	if b.filled == len(b.window) {
		if b.window[b.idx] {
			b.failures--
		}
	} else {
		b.filled++
	}
	b.window[b.idx] = failure
	if failure {
		b.failures++
	}
	b.idx = (b.idx + 1) % len(b.window)
}

func (b *Breaker) resetWindow() {
	for i := range b.window {
		b.window[i] = false
	}
	b.idx = 0
	b.filled = 0
	b.failures = 0
}
