package aghpb

import (
	"context"
)

// Action is a prepared call to one endpoint paired with the decoder of its
// response. Nothing is sent until Execute or Queue is called, and an
// Action may be executed any number of times.
type Action[T any] struct {
	client   *Client
	endpoint *Endpoint
	decode   Decoder[T]

	// decoded runs after a successful decode, before the result is returned.
	decoded func(result T)
}

func newAction[T any](client *Client, endpoint *Endpoint, decode Decoder[T]) *Action[T] {
	return &Action[T]{
		client:   client,
		endpoint: endpoint,
		decode:   decode,
	}
}

// Endpoint returns a copy of the endpoint the action sends. Changing the
// copy does not affect the action.
func (a *Action[T]) Endpoint() *Endpoint {
	return a.endpoint.clone()
}

// Execute sends the request on the calling goroutine and decodes the
// response. It blocks until the result is available.
func (a *Action[T]) Execute(ctx context.Context) (T, error) {
	var zero T

	resp, err := a.client.requester.Execute(ctx, a.endpoint)
	if err != nil {
		return zero, err
	}

	result, err := a.decode(resp)
	if err != nil {
		a.client.logger.Debug("failed to decode response",
			"endpoint", a.endpoint.Name,
			"request_id", resp.RequestID,
			"status", resp.StatusCode,
			"error", err)
		return zero, err
	}

	if a.decoded != nil {
		a.decoded(result)
	}
	return result, nil
}

// Queue runs Execute on a dispatch goroutine and invokes exactly one of the
// callbacks there. Queue returns only after the callback finished, so it
// does not shorten the caller's wall-clock latency.
//
// At most MaxConcurrentDispatch queued actions send or decode at once. The
// limit does not cover the callbacks, which may queue further actions.
//
// A nil onSuccess discards the result. A nil onFailure escalates the error
// to the client's unhandled-error handler, which panics by default.
func (a *Action[T]) Queue(ctx context.Context, onSuccess func(T), onFailure func(error)) {
	a.client.dispatch(ctx,
		func() func() {
			result, err := a.Execute(ctx)
			if err != nil {
				return func() { a.fail(err, onFailure) }
			}
			return func() {
				if onSuccess != nil {
					onSuccess(result)
				}
			}
		},
		func(err error) {
			a.fail(err, onFailure)
		},
	)
}

func (a *Action[T]) fail(err error, onFailure func(error)) {
	if onFailure != nil {
		onFailure(err)
		return
	}
	a.client.logger.Error("queued action failed without failure callback",
		"endpoint", a.endpoint.Name,
		"error", err)
	a.client.config.OnUnhandledError(err)
}
