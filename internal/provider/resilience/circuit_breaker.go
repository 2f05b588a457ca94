// Package resilience provides HTTP client wrappers with circuit breakers,
// timeouts and retries for calls to external model and image providers.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker for logging/metrics.
	Name string

	// MaxRequests is the maximum number of requests allowed in half-open state.
	// Default: 1
	MaxRequests uint32

	// Interval is the cyclic period for clearing internal counts when closed.
	// Default: 0 (disabled)
	Interval time.Duration

	// Timeout is the period of open state before switching to half-open.
	// Default: 60 seconds
	Timeout time.Duration

	// ReadyToTrip determines when to trip the circuit breaker.
	// If nil, uses DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called when the circuit breaker state changes.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the default configuration.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// DefaultReadyToTrip trips the circuit breaker when at least 5 requests have been made
// and the failure rate is 50% or higher.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
	return counts.Requests >= 5 && failureRatio >= 0.5
}

// ConsecutiveFailures returns a ReadyToTrip that opens the circuit after n
// failures in a row.
func ConsecutiveFailures(n uint32) func(counts gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
// Caller cancellation is not counted as a failure.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}

	return gobreaker.NewCircuitBreaker[T](settings)
}

// Guard runs arbitrary calls through a circuit breaker. It is used for
// providers reached through SDKs rather than a plain HTTP client.
type Guard[T any] struct {
	name     string
	cb       *gobreaker.CircuitBreaker[T]
	registry *Registry
}

// NewGuard creates a Guard and registers it with registry when non-nil.
func NewGuard[T any](cfg CircuitBreakerConfig, registry *Registry) *Guard[T] {
	g := &Guard[T]{
		name:     cfg.Name,
		cb:       NewCircuitBreaker[T](cfg),
		registry: registry,
	}
	if registry != nil {
		registry.Register(cfg.Name, g)
	}
	return g
}

// Execute calls fn unless the circuit is open, in which case it returns
// ErrCircuitOpen without calling fn.
func (g *Guard[T]) Execute(fn func() (T, error)) (T, error) {
	v, err := g.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = ErrCircuitOpen
	}
	if g.registry != nil {
		if err != nil {
			g.registry.RecordFailure(g.name, err)
		} else {
			g.registry.RecordSuccess(g.name)
		}
	}
	return v, err
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (g *Guard[T]) CircuitBreakerState() gobreaker.State {
	return g.cb.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (g *Guard[T]) CircuitBreakerCounts() gobreaker.Counts {
	return g.cb.Counts()
}
