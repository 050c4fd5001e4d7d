package aghpb

// HealthStatus reports whether a client can currently reach the API.
// Without a circuit breaker the client is always reported healthy with
// status "no-breaker".
type HealthStatus struct {
	// Healthy is false only while the circuit breaker is open.
	Healthy bool `json:"healthy"`

	// CircuitBreaker is true when the client runs a circuit breaker.
	CircuitBreaker bool `json:"circuit_breaker"`

	// Status is the breaker state ("closed", "half-open", "open") or "no-breaker".
	Status string `json:"status"`

	// Requests is the number of requests in the current breaker interval.
	Requests uint32 `json:"requests"`

	// TotalSuccesses is the number of successful requests in the interval.
	TotalSuccesses uint32 `json:"total_successes"`

	// TotalFailures is the number of failed requests in the interval.
	TotalFailures uint32 `json:"total_failures"`

	// ConsecutiveFailures is the number of consecutive failures.
	ConsecutiveFailures uint32 `json:"consecutive_failures"`

	// ConsecutiveSuccesses is the number of consecutive successes.
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
}
