package aghpb

import (
	"errors"
	"fmt"
	"net"
	"time"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
)

var (
	// ErrTransport is returned when the request could not be sent, or no
	// response was received, after the retry budget was spent.
	ErrTransport = errors.New("aghpb: transport failure")

	// ErrDecode is returned when a response violates the API contract:
	// unexpected content type, missing required JSON field or a body that
	// is not JSON where JSON is expected. Decode errors are never retried.
	ErrDecode = errors.New("aghpb: decode failure")

	// ErrIllegalUsage is returned when the caller misuses the client.
	ErrIllegalUsage = errors.New("aghpb: illegal usage")

	// ErrCacheDisabled is returned when the category cache is read before
	// caching was enabled and nothing has been cached yet.
	ErrCacheDisabled = fmt.Errorf("%w: category caching is disabled, enable it with WithCategoryCache or WithCache first", ErrIllegalUsage)

	// ErrUnsupportedImageExtension is returned when an image is saved to a
	// file whose name does not end in .png, .jpg or .jpeg.
	ErrUnsupportedImageExtension = fmt.Errorf("%w: file must be a valid image file (png, jpg, jpeg)", ErrIllegalUsage)

	// ErrEmptyPath is returned when an image is saved without a file path.
	ErrEmptyPath = fmt.Errorf("%w: file path cannot be empty", ErrIllegalUsage)
)

// ErrorClassifier determines whether a failed send should be retried.
// Implement this interface to customize retry behavior of the executor.
type ErrorClassifier interface {
	// IsRetryable returns true if the error represents a transient failure
	// that should consume one retry.
	IsRetryable(err error) bool
}

// TransportClassifier treats every transport failure as retryable. The
// executor itself stops retrying once the caller's context is done.
type TransportClassifier struct{}

// IsRetryable implements ErrorClassifier.
func (TransportClassifier) IsRetryable(err error) bool {
	return err != nil
}

// DefaultErrorClassifier returns the classifier used when none is configured.
func DefaultErrorClassifier() ErrorClassifier {
	return TransportClassifier{}
}

// HTTPError represents an error with an associated HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// StatusCodeError wraps an error with the HTTP status code of the response
// that produced it.
type StatusCodeError struct {
	Err  error
	Code int
}

// Error implements the error interface.
func (e *StatusCodeError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *StatusCodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code.
func (e *StatusCodeError) StatusCode() int {
	return e.Code
}

// NewStatusCodeError creates a new StatusCodeError.
func NewStatusCodeError(statusCode int, err error) error {
	return &StatusCodeError{
		Code: statusCode,
		Err:  err,
	}
}

// StatusCodeOf extracts the HTTP status code carried by err, or 0.
func StatusCodeOf(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return 0
}

// decodeError builds an ErrDecode carrying the response status code.
func decodeError(resp *RawResponse, format string, args ...any) error {
	err := fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
	if resp == nil {
		return err
	}
	return NewStatusCodeError(resp.StatusCode, err)
}

// transportError wraps the final send failure. Client timeouts are also
// reported as jp-go-errors timeout errors so pkgerrors.IsTimeout matches.
func transportError(endpoint *Endpoint, attempts int, timeout time.Duration, err error) error {
	wrapped := fmt.Errorf("%w: %s %s failed after %d attempt(s): %w",
		ErrTransport, endpoint.Method, endpoint.URL, attempts, err)

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(wrapped, pkgerrors.NewTimeoutError(
			"request timed out", "aghpb."+endpoint.Name, timeout))
	}
	return wrapped
}

// rateLimitError reports a rate-limit wait interrupted by the caller's context.
func rateLimitError(endpoint *Endpoint, err error) error {
	return fmt.Errorf("%w: waiting for %s rate limit reset: %w",
		pkgerrors.ErrRateLimited, endpoint.Name, err)
}
