package aghpb

import (
	"context"
	"errors"
	"log/slog"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds circuit breaker configuration options.
type CircuitBreakerConfig struct {
	// ReadyToTrip is called with a copy of counts whenever a request fails in the closed state.
	// If ReadyToTrip returns true, the circuit breaker will be placed into the open state.
	// Default: trips after 3 requests with 60% failure rate
	ReadyToTrip func(counts CircuitBreakerCounts) bool

	// OnStateChange is called whenever the circuit breaker changes state.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Name identifies the breaker in logs and state change callbacks.
	// Default: "aghpb"
	Name string

	// Interval is the cyclic period of the closed state for the circuit breaker
	// to clear the internal counts. If 0, never clears.
	// Default: 10 seconds
	Interval time.Duration

	// Timeout is the period of the open state, after which the state becomes half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRequests is the maximum number of requests allowed to pass through
	// when the circuit breaker is in the half-open state.
	// Default: 3
	MaxRequests uint32
}

// CircuitBreakerOption is a functional option for configuring circuit breaker behavior.
type CircuitBreakerOption func(*CircuitBreakerConfig)

// CircuitBreakerCounts holds the internal counts of the circuit breaker.
type CircuitBreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means the circuit is closed and requests flow normally.
	StateClosed CircuitBreakerState = iota

	// StateHalfOpen means the circuit is testing if the API has recovered.
	StateHalfOpen

	// StateOpen means the circuit is open and requests are rejected immediately.
	StateOpen
)

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// WithBreakerMaxRequests sets the maximum number of requests in half-open state.
func WithBreakerMaxRequests(maxRequests uint32) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.MaxRequests = maxRequests
	}
}

// WithBreakerInterval sets the interval for clearing counts in closed state.
func WithBreakerInterval(interval time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Interval = interval
	}
}

// WithBreakerTimeout sets the timeout for staying in open state.
//
// Example:
//
//	aghpb.WithBreakerTimeout(60 * time.Second)
func WithBreakerTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Timeout = timeout
	}
}

// WithReadyToTrip sets a custom function to determine when to trip the circuit.
//
// Example:
//
//	aghpb.WithReadyToTrip(func(counts aghpb.CircuitBreakerCounts) bool {
//	    return counts.ConsecutiveFailures >= 2
//	})
func WithReadyToTrip(fn func(counts CircuitBreakerCounts) bool) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ReadyToTrip = fn
	}
}

// WithStateChangeHandler sets a callback for circuit breaker state changes.
func WithStateChangeHandler(fn func(name string, from, to CircuitBreakerState)) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// DefaultCircuitBreakerConfig returns circuit breaker configuration with sensible defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "aghpb",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts CircuitBreakerCounts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
}

// CircuitBreaker guards a RequestExecutor. Only transport failures that
// survived the executor's retries count as failures. Interrupted rate-limit
// waits and failures after the caller's context is done do not.
type CircuitBreaker struct {
	next   RequestExecutor
	cb     *gobreaker.CircuitBreaker[*RawResponse]
	logger *slog.Logger
}

// NewCircuitBreaker wraps next with a circuit breaker.
func NewCircuitBreaker(next RequestExecutor, config *CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = DefaultCircuitBreakerConfig().ReadyToTrip
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return config.ReadyToTrip(convertGobreakerCounts(counts))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			if config.OnStateChange != nil {
				config.OnStateChange(name, convertGobreakerState(from), convertGobreakerState(to))
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !shouldTripCircuit(err)
		},
	}

	return &CircuitBreaker{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker[*RawResponse](settings),
		logger: logger,
	}
}

// callerError marks a failure that happened after the caller's context was
// done. It never counts against the breaker and is unwrapped before the
// error is returned.
type callerError struct {
	err error
}

func (e *callerError) Error() string { return e.err.Error() }
func (e *callerError) Unwrap() error { return e.err }

// shouldTripCircuit reports whether err is a failure of the remote API
// rather than of the caller.
func shouldTripCircuit(err error) bool {
	var caller *callerError
	if errors.As(err, &caller) {
		return false
	}
	if errors.Is(err, jperrors.ErrRateLimited) {
		return false
	}
	return errors.Is(err, ErrTransport)
}

// Execute executes the request through the circuit breaker.
// Circuit breaker rejections are wrapped with jperrors types:
//   - gobreaker.ErrOpenState becomes jperrors.ErrCircuitOpen
//   - gobreaker.ErrTooManyRequests becomes jperrors.ErrCircuitTooManyRequests
func (b *CircuitBreaker) Execute(ctx context.Context, endpoint *Endpoint) (*RawResponse, error) {
	resp, err := b.cb.Execute(func() (*RawResponse, error) {
		resp, err := b.next.Execute(ctx, endpoint)
		if err != nil && ctx.Err() != nil {
			return nil, &callerError{err: err}
		}
		return resp, err
	})
	if err == nil {
		return resp, nil
	}

	var caller *callerError
	if errors.As(err, &caller) {
		b.logger.Debug("request abandoned by caller, not counted",
			"endpoint", endpoint.Name,
			"error", caller.err)
		return nil, caller.err
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		counts := b.cb.Counts()
		b.logger.Warn("circuit breaker is open, request rejected",
			"endpoint", endpoint.Name,
			"state", b.cb.State().String(),
			"counts", counts)
		return nil, jperrors.NewCircuitBreakerError(
			"request rejected",
			endpoint.Name,
			"open",
			jperrors.WithCause(err),
			jperrors.WithCounts(circuitCounts(counts)),
		)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		b.logger.Debug("circuit breaker in half-open state, too many requests",
			"endpoint", endpoint.Name)
		return nil, jperrors.NewCircuitBreakerError(
			"too many requests in half-open state",
			endpoint.Name,
			"half-open",
			jperrors.WithCause(err),
			jperrors.WithCounts(circuitCounts(b.cb.Counts())),
		)
	default:
		b.logger.Debug("request failed through circuit breaker",
			"endpoint", endpoint.Name,
			"error", err,
			"should_trip", shouldTripCircuit(err))
		return nil, err
	}
}

// State returns the current state of the circuit breaker.
func (b *CircuitBreaker) State() CircuitBreakerState {
	return convertGobreakerState(b.cb.State())
}

// Counts returns the current counts of the circuit breaker.
func (b *CircuitBreaker) Counts() CircuitBreakerCounts {
	return convertGobreakerCounts(b.cb.Counts())
}

// Health returns the health status of the circuit breaker.
func (b *CircuitBreaker) Health() HealthStatus {
	state := b.State()
	counts := b.Counts()

	return HealthStatus{
		Healthy:              state != StateOpen,
		Status:               state.String(),
		CircuitBreaker:       true,
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
	}
}

func convertGobreakerState(state gobreaker.State) CircuitBreakerState {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

func convertGobreakerCounts(counts gobreaker.Counts) CircuitBreakerCounts {
	return CircuitBreakerCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

func circuitCounts(counts gobreaker.Counts) jperrors.CircuitCounts {
	return jperrors.CircuitCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}
