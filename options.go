package aghpb

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the public AGHPB API endpoint.
const DefaultBaseURL = "https://api.devgoldy.xyz/aghpb/v1"

// ClientConfig holds client configuration options.
type ClientConfig struct {
	// HTTPClient sends the requests. When nil, a client that follows
	// redirects and prefers HTTP/2 is built using Timeout.
	HTTPClient *http.Client

	// ErrorClassifier determines which send failures consume a retry.
	// Default: TransportClassifier
	ErrorClassifier ErrorClassifier

	// Logger for client and executor operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// OnUnhandledError receives errors of queued actions that were given no
	// failure callback. It runs on the background goroutine.
	// Default: panics with the error
	OnUnhandledError func(err error)

	// CircuitBreaker enables the circuit breaker around the executor.
	// Default: nil (disabled)
	CircuitBreaker *CircuitBreakerConfig

	// BaseURL is the API root without a trailing slash.
	// Default: DefaultBaseURL
	BaseURL string

	// UserAgent is sent with every request when not empty.
	UserAgent string

	// Timeout applies to the HTTP client built when HTTPClient is nil.
	// Default: 30 seconds
	Timeout time.Duration

	// RetryDelay is the pause before retrying a failed send.
	// Default: 0 (retry immediately)
	RetryDelay time.Duration

	// MaxRetries is the number of retries after the initial send.
	// Rate-limit waits do not consume retries.
	// Default: 3
	MaxRetries int

	// MaxConcurrentDispatch bounds how many queued actions run at once.
	// Default: 8
	MaxConcurrentDispatch int

	// CacheCategories is the client-wide default for category caching.
	// Default: false
	CacheCategories bool
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*ClientConfig)

// WithBaseURL sets the API base URL.
//
// Example:
//
//	aghpb.New(aghpb.WithBaseURL("http://localhost:8000"))
func WithBaseURL(url string) ClientOption {
	return func(c *ClientConfig) {
		c.BaseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *ClientConfig) {
		c.HTTPClient = client
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithMaxRetries sets the retry budget for transport failures.
// The total number of sends will be retries+1.
//
// Example:
//
//	aghpb.WithMaxRetries(5) // Send up to 6 times
func WithMaxRetries(retries int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxRetries = retries
	}
}

// WithRetryDelay sets the pause before each retry of a failed send.
func WithRetryDelay(delay time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.RetryDelay = delay
	}
}

// WithErrorClassifier sets a custom error classifier for retry decisions.
func WithErrorClassifier(classifier ErrorClassifier) ClientOption {
	return func(c *ClientConfig) {
		c.ErrorClassifier = classifier
	}
}

// WithLogger sets a custom logger.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	aghpb.WithLogger(logger)
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *ClientConfig) {
		c.UserAgent = userAgent
	}
}

// WithCategoryCache sets the client-wide default for category caching.
func WithCategoryCache(enabled bool) ClientOption {
	return func(c *ClientConfig) {
		c.CacheCategories = enabled
	}
}

// WithMaxConcurrentDispatch bounds the number of queued actions running at once.
func WithMaxConcurrentDispatch(n int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxConcurrentDispatch = n
	}
}

// WithUnhandledErrorHandler replaces the default panic for queued actions
// that fail without a failure callback.
func WithUnhandledErrorHandler(fn func(err error)) ClientOption {
	return func(c *ClientConfig) {
		c.OnUnhandledError = fn
	}
}

// WithCircuitBreaker enables the circuit breaker with the given options
// applied on top of DefaultCircuitBreakerConfig.
//
// Example:
//
//	aghpb.WithCircuitBreaker(aghpb.WithBreakerTimeout(time.Minute))
func WithCircuitBreaker(opts ...CircuitBreakerOption) ClientOption {
	return func(c *ClientConfig) {
		cb := DefaultCircuitBreakerConfig()
		for _, opt := range opts {
			opt(cb)
		}
		c.CircuitBreaker = cb
	}
}

// DefaultClientConfig returns client configuration with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:               DefaultBaseURL,
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		MaxConcurrentDispatch: 8,
		ErrorClassifier:       DefaultErrorClassifier(),
		Logger:                slog.Default(),
		OnUnhandledError:      panicUnhandled,
	}
}

// applyDefaults fills zero values left by options.
func (c *ClientConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ErrorClassifier == nil {
		c.ErrorClassifier = DefaultErrorClassifier()
	}
	if c.OnUnhandledError == nil {
		c.OnUnhandledError = panicUnhandled
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxConcurrentDispatch <= 0 {
		c.MaxConcurrentDispatch = 1
	}
	if c.HTTPClient == nil {
		c.HTTPClient = newHTTPClient(c.Timeout)
	}
}

// newHTTPClient builds a client that follows redirects (the http.Client
// default) and negotiates HTTP/2 when the server offers it.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ForceAttemptHTTP2 = true
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func panicUnhandled(err error) {
	panic(fmt.Errorf("aghpb: unhandled failure of queued action: %w", err))
}
