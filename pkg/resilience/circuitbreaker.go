// Package resilience holds the fault-tolerance primitives the services put
// around their dependencies: a circuit breaker for the Redis cache tier,
// jittered retry for record loads and Kafka publishes, and a generic
// deadline wrapper for queries and rebuilds.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the protected function while
// the breaker rejects traffic.
var ErrCircuitOpen = errors.New("circuit breaker is open")

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

// CircuitBreakerConfig controls when the breaker trips and how it probes
// for recovery. Zero values take the defaults: 5 failures, 30s, 1 probe.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// OnStateChange runs after every transition, outside the breaker's lock.
	OnStateChange func(name string, to State)
}

// CircuitBreaker counts consecutive failures of one dependency. At the
// threshold it opens and fails fast; after ResetTimeout it lets up to
// HalfOpenMaxRequests probes through and closes on the first success.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	now    func() time.Time
	logger *slog.Logger

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
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Do runs fn when the breaker admits the call and records the outcome.
// An error caused by the caller's own cancelled ctx is not held against
// the dependency.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		cb.record(nil)
		return err
	}
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.probes = 1
		notify := cb.transition(StateHalfOpen)
		cb.mu.Unlock()
		notify()
		return nil
	case StateHalfOpen:
		defer cb.mu.Unlock()
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
		cb.probes++
		return nil
	default:
		cb.mu.Unlock()
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	notify := func() {}
	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			notify = cb.transition(StateClosed)
		}
	} else {
		cb.failures++
		if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold) {
			cb.openedAt = cb.now()
			notify = cb.transition(StateOpen)
		}
	}
	cb.mu.Unlock()
	notify()
}

// transition must be called with mu held; the returned func runs the
// state-change hook and must be called after unlocking.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	cb.state = to
	if to != StateHalfOpen {
		cb.probes = 0
	}
	switch to {
	case StateOpen:
		cb.logger.Warn("circuit opened", "from", from, "consecutive_failures", cb.failures)
	default:
		cb.logger.Info("circuit state changed", "from", from, "to", to)
	}
	hook := cb.cfg.OnStateChange
	return func() {
		if hook != nil {
			hook(cb.name, to)
		}
	}
}
