package aghpb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	headerRateLimitRemaining = "X-Ratelimit-Remaining"
	headerRateLimitReset     = "X-Ratelimit-Reset"
	headerRequestID          = "X-Request-Id"
)

// RequestExecutor sends an Endpoint and returns the raw response.
// Executor and CircuitBreaker both implement it.
type RequestExecutor interface {
	// Execute performs the request and returns the response or error.
	// The context controls cancellation of sends and rate-limit waits.
	Execute(ctx context.Context, endpoint *Endpoint) (*RawResponse, error)
}

// Endpoint describes one remote call. It is immutable once built; the
// With* methods return modified copies.
type Endpoint struct {
	Header http.Header
	Name   string
	Method string
	URL    string
}

// NewEndpoint creates an Endpoint for an absolute URL.
func NewEndpoint(name, method, url string) *Endpoint {
	return &Endpoint{
		Name:   name,
		Method: method,
		URL:    url,
		Header: http.Header{},
	}
}

// WithHeader returns a copy of the endpoint with the header set.
func (e *Endpoint) WithHeader(key, value string) *Endpoint {
	clone := e.clone()
	clone.Header.Set(key, value)
	return clone
}

func (e *Endpoint) clone() *Endpoint {
	clone := *e
	clone.Header = e.Header.Clone()
	if clone.Header == nil {
		clone.Header = http.Header{}
	}
	return &clone
}

// RawResponse is an undecoded HTTP response with its body fully read.
type RawResponse struct {
	Header     http.Header
	RequestID  string
	Body       []byte
	StatusCode int
}

// Executor sends requests with a bounded retry budget for transport
// failures and unbounded waits for server rate limits.
//
// A response carrying x-ratelimit-remaining: 0 and a reset time in the
// future makes the executor wait until the reset and send again without
// consuming a retry. There is no cap on consecutive waits, so a server
// that keeps reporting an exhausted quota stalls the call until the
// caller's context is done.
type Executor struct {
	httpClient *http.Client
	config     *ClientConfig
	logger     *slog.Logger
	classifier ErrorClassifier
	stats      *executorStats
	now        func() time.Time
	wait       func(ctx context.Context, d time.Duration) error
}

// executorStats tracks executor statistics.
type executorStats struct {
	mu              sync.RWMutex
	totalSends      int64
	totalRetries    int64
	rateLimitWaits  int64
	totalSuccesses  int64
	totalFailures   int64
	lastAttemptTime time.Time
	lastError       error
}

// NewExecutor creates a standalone executor. Only the transport related
// options (HTTP client, timeout, retries, classifier, logger, user agent)
// are used.
func NewExecutor(opts ...ClientOption) *Executor {
	config := DefaultClientConfig()
	for _, opt := range opts {
		opt(config)
	}
	config.applyDefaults()
	return newExecutor(config)
}

func newExecutor(config *ClientConfig) *Executor {
	return &Executor{
		httpClient: config.HTTPClient,
		config:     config,
		logger:     config.Logger,
		classifier: config.ErrorClassifier,
		stats:      &executorStats{},
		now:        time.Now,
		wait:       sleepContext,
	}
}

// Execute sends the endpoint, retrying transport failures up to MaxRetries
// times and waiting out rate limits. Responses that are not rate limited
// are returned unchanged whatever their status code.
func (e *Executor) Execute(ctx context.Context, endpoint *Endpoint) (*RawResponse, error) {
	if endpoint == nil {
		return nil, fmt.Errorf("%w: endpoint cannot be nil", ErrIllegalUsage)
	}

	select {
	case <-ctx.Done():
		e.logger.Warn("context already done before request (expected condition)",
			"endpoint", endpoint.Name,
			"error", ctx.Err())
		return nil, ctx.Err()
	default:
	}

	requestID := uuid.NewString()
	template, err := e.buildRequest(ctx, endpoint, requestID)
	if err != nil {
		return nil, err
	}

	var response *RawResponse
	var sends int

	err = retry.Do(ctx, e.backoff(), func(ctx context.Context) error {
		if sends > 0 {
			e.stats.mu.Lock()
			e.stats.totalRetries++
			e.stats.mu.Unlock()
		}

		for {
			sends++
			e.stats.mu.Lock()
			e.stats.totalSends++
			e.stats.lastAttemptTime = e.now()
			e.stats.mu.Unlock()

			resp, err := e.send(template.Clone(ctx), requestID)
			if err != nil {
				// Client timeouts also match context.DeadlineExceeded, so only
				// the caller's own context tells whether the caller gave up.
				if ctx.Err() != nil {
					e.logger.Debug("caller context done, not retrying",
						"endpoint", endpoint.Name,
						"request_id", requestID,
						"error", err,
						"sends", sends)
					return err
				}
				if !e.classifier.IsRetryable(err) {
					e.logger.Debug("non-retryable send failure, giving up",
						"endpoint", endpoint.Name,
						"request_id", requestID,
						"error", err,
						"sends", sends)
					return err
				}

				e.logger.Debug("retrying request after send failure",
					"endpoint", endpoint.Name,
					"request_id", requestID,
					"attempt", sends,
					"error", err)
				return retry.RetryableError(err)
			}

			delay, limited := e.rateLimitDelay(resp.Header)
			if !limited {
				if sends > 1 {
					e.logger.Info("request succeeded after retry",
						"endpoint", endpoint.Name,
						"request_id", requestID,
						"sends", sends)
				}
				response = resp
				return nil
			}

			e.logger.Warn("rate limited, waiting for quota reset",
				"endpoint", endpoint.Name,
				"request_id", requestID,
				"delay", delay)
			e.stats.mu.Lock()
			e.stats.rateLimitWaits++
			e.stats.mu.Unlock()

			if err := e.wait(ctx, delay); err != nil {
				return rateLimitError(endpoint, err)
			}
		}
	})
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrRateLimited) {
			err = transportError(endpoint, sends, e.httpClient.Timeout, err)
		}
		e.logger.Warn("request failed after retries",
			"endpoint", endpoint.Name,
			"request_id", requestID,
			"sends", sends,
			"error", err)
		e.stats.mu.Lock()
		e.stats.totalFailures++
		e.stats.lastError = err
		e.stats.mu.Unlock()
		return nil, err
	}

	e.stats.mu.Lock()
	e.stats.totalSuccesses++
	e.stats.mu.Unlock()

	return response, nil
}

// buildRequest validates the endpoint once; every send clones the result.
func (e *Executor) buildRequest(ctx context.Context, endpoint *Endpoint, requestID string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, endpoint.Method, endpoint.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building %s request: %w", ErrIllegalUsage, endpoint.Name, err)
	}

	for key, values := range endpoint.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if e.config.UserAgent != "" {
		req.Header.Set("User-Agent", e.config.UserAgent)
	}
	req.Header.Set(headerRequestID, requestID)

	return req, nil
}

func (e *Executor) send(req *http.Request, requestID string) (*RawResponse, error) {
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		RequestID:  requestID,
	}, nil
}

// rateLimitDelay reports whether the response exhausted the quota and how
// long to wait for the reset. A reset that is missing, malformed or not in
// the future does not trigger a wait.
func (e *Executor) rateLimitDelay(header http.Header) (time.Duration, bool) {
	if header.Get(headerRateLimitRemaining) != "0" {
		return 0, false
	}

	reset, err := strconv.ParseInt(header.Get(headerRateLimitReset), 10, 64)
	if err != nil {
		return 0, false
	}

	delay := time.Unix(reset, 0).Sub(e.now())
	if delay <= 0 {
		return 0, false
	}
	return delay, true
}

// backoff allows MaxRetries retries after the initial send.
func (e *Executor) backoff() retry.Backoff {
	maxRetries := e.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxRetries > 1000 {
		maxRetries = 1000
	}

	delay := e.config.RetryDelay
	return retry.WithMaxRetries(
		uint64(maxRetries), // #nosec G115 - bounds checked above
		retry.BackoffFunc(func() (time.Duration, bool) {
			return delay, false
		}),
	)
}

// ExecutorStats holds statistics about executor operations.
type ExecutorStats struct {
	// LastAttemptTime is the time of the last send
	LastAttemptTime time.Time

	// LastError is the last error returned to a caller (if any)
	LastError error

	// TotalSends is the number of HTTP sends, including retries and
	// sends repeated after a rate-limit wait
	TotalSends int64

	// TotalRetries is the number of retries consumed by transport failures
	TotalRetries int64

	// RateLimitWaits is the number of waits for a quota reset
	RateLimitWaits int64

	// TotalSuccesses is the number of calls that returned a response
	TotalSuccesses int64

	// TotalFailures is the number of calls that returned an error
	TotalFailures int64
}

// Stats returns a snapshot of the executor statistics.
func (e *Executor) Stats() ExecutorStats {
	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()

	return ExecutorStats{
		TotalSends:      e.stats.totalSends,
		TotalRetries:    e.stats.totalRetries,
		RateLimitWaits:  e.stats.rateLimitWaits,
		TotalSuccesses:  e.stats.totalSuccesses,
		TotalFailures:   e.stats.totalFailures,
		LastAttemptTime: e.stats.lastAttemptTime,
		LastError:       e.stats.lastError,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
