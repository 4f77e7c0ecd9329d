// Package resilience holds the fault-tolerance helpers wrapped around the
// optional network tiers (Redis, Postgres): a circuit breaker, retry with
// exponential backoff and a deadline-bounded call.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is rejecting traffic.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is exported as a gauge value, so the numbering is stable.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig tunes a CircuitBreaker. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. Default 5.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before probing.
	// Default 30s.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests caps concurrent probes. Default 1.
	HalfOpenMaxRequests int
	// OnStateChange runs under the breaker lock and must not call back
	// into the breaker.
	OnStateChange func(name string, to State)
}

// CircuitBreaker fails fast after repeated errors from a dependency and
// lets a limited number of probes through once ResetTimeout has passed.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

// Execute calls fn unless the circuit is open and feeds its outcome back
// into the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// State reports the current state, moving an expired open circuit to
// half-open first.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expire()
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expire()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		return fmt.Errorf("%w: %s, retry in %v", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s, probe in flight", ErrCircuitOpen, cb.name)
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
			cb.logger.Info("circuit recovered")
		}
		return
	}
	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.trip()
		cb.logger.Warn("probe failed, circuit re-opened", "error", err)
	case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
		cb.trip()
		cb.logger.Warn("circuit opened", "consecutive_failures", cb.failures, "error", err)
	}
}

// expire must hold mu.
func (cb *CircuitBreaker) expire() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.transition(StateHalfOpen)
		cb.logger.Info("circuit half-open, probing")
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.transition(StateOpen)
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	cb.state = to
	cb.probes = 0
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
