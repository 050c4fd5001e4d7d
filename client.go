// Package aghpb is a client for the AGHPB (Anime Girls Holding Programming
// Books) API. Every endpoint is exposed as an Action that can be executed
// on the calling goroutine or queued with success and failure callbacks.
//
// Requests go through an Executor that retries transport failures a
// bounded number of times and waits out server rate limits without
// consuming retries. An optional circuit breaker can be layered on top.
//
// Example:
//
//	client := aghpb.New(aghpb.WithMaxRetries(3))
//
//	book, err := client.RandomBook(aghpb.WithCategory("Go")).Execute(ctx)
//	if err != nil {
//	    return err
//	}
//	return book.SaveImage("books/" + book.Name + ".png")
package aghpb

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Client talks to one AGHPB API instance. A Client holds only its
// configuration and the optional category cache; every call is otherwise
// independent. There is no implicit default instance.
type Client struct {
	config    *ClientConfig
	logger    *slog.Logger
	executor  *Executor
	breaker   *CircuitBreaker
	requester RequestExecutor

	// slots bounds queued actions that are sending or decoding. Callbacks
	// run after the slot is released.
	slots *semaphore.Weighted

	// categories is the single cache slot. It is not coordinated with
	// in-flight fetches; the last successful cached fetch wins.
	categories atomic.Pointer[[]string]
}

// New creates a client. Without options it talks to DefaultBaseURL with a
// retry budget of 3 and category caching disabled.
func New(opts ...ClientOption) *Client {
	config := DefaultClientConfig()
	for _, opt := range opts {
		opt(config)
	}
	config.applyDefaults()
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	executor := newExecutor(config)

	client := &Client{
		config:    config,
		logger:    config.Logger,
		executor:  executor,
		requester: executor,
		slots:     semaphore.NewWeighted(int64(config.MaxConcurrentDispatch)),
	}

	if config.CircuitBreaker != nil {
		client.breaker = NewCircuitBreaker(executor, config.CircuitBreaker, config.Logger)
		client.requester = client.breaker
	}

	return client
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// CallOption customizes a single endpoint call. Options that do not apply
// to an endpoint are ignored.
type CallOption func(*callOptions)

type callOptions struct {
	cache     *bool
	category  string
	imageType ImageType
	limit     int
}

// WithCategory restricts a search or a random book to a category.
func WithCategory(category string) CallOption {
	return func(o *callOptions) {
		o.category = category
	}
}

// WithLimit caps the number of search results. Values <= 0 leave the
// limit to the server.
func WithLimit(limit int) CallOption {
	return func(o *callOptions) {
		o.limit = limit
	}
}

// WithImageType selects the image encoding of image endpoints.
// Default: ImageTypePNG
func WithImageType(imageType ImageType) CallOption {
	return func(o *callOptions) {
		o.imageType = imageType
	}
}

// WithCache overrides the client-wide category caching default for one
// Categories call.
func WithCache(enabled bool) CallOption {
	return func(o *callOptions) {
		o.cache = &enabled
	}
}

func applyCallOptions(opts []CallOption) *callOptions {
	o := &callOptions{imageType: ImageTypePNG}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status retrieves the API status from /nya.
func (c *Client) Status() *Action[APIStatus] {
	return newAction(c, c.endpoint("status", "/nya", nil), decodeStatus)
}

// Info retrieves the book count and API version from /info.
func (c *Client) Info() *Action[APIInfo] {
	return newAction(c, c.endpoint("info", "/info", nil), decodeInfo)
}

// Categories retrieves all category names. When caching applies to the
// call, a successful result overwrites the client's cached categories.
func (c *Client) Categories(opts ...CallOption) *Action[[]string] {
	o := applyCallOptions(opts)
	action := newAction(c, c.endpoint("categories", "/categories", nil), decodeCategories)

	cache := c.config.CacheCategories
	if o.cache != nil {
		cache = *o.cache
	}
	if cache {
		action.decoded = func(categories []string) {
			cached := slices.Clone(categories)
			c.categories.Store(&cached)
		}
	}
	return action
}

// CachedCategories returns the cached categories. If nothing is cached and
// caching is enabled client-wide, the categories are fetched and cached
// synchronously. If nothing is cached and caching is disabled it returns
// ErrCacheDisabled.
func (c *Client) CachedCategories(ctx context.Context) ([]string, error) {
	if cached := c.categories.Load(); cached != nil {
		return slices.Clone(*cached), nil
	}
	if !c.config.CacheCategories {
		return nil, ErrCacheDisabled
	}

	c.logger.Debug("category cache empty, fetching categories")
	return c.Categories(WithCache(true)).Execute(ctx)
}

// Search retrieves books whose names match query. The results carry no
// image bytes; use Book to fetch an image.
func (c *Client) Search(query string, opts ...CallOption) *Action[[]Book] {
	o := applyCallOptions(opts)

	params := url.Values{}
	params.Set("query", query)
	if o.category != "" {
		params.Set("category", o.category)
	}
	if o.limit > 0 {
		params.Set("limit", strconv.Itoa(o.limit))
	}

	return newAction(c, c.endpoint("search", "/search", params), searchDecoder(c.logger))
}

// RandomBook retrieves a random book, optionally from one category.
func (c *Client) RandomBook(opts ...CallOption) *Action[*Book] {
	o := applyCallOptions(opts)

	var params url.Values
	if o.category != "" {
		params = url.Values{"category": {o.category}}
	}

	endpoint := c.endpoint("random", "/random", params).
		WithHeader("Accept", o.imageType.MIMEType())
	return newAction(c, endpoint, imageDecoder(o.imageType, -1))
}

// Book retrieves the book with the given search id, including its image.
func (c *Client) Book(searchID int, opts ...CallOption) *Action[*Book] {
	o := applyCallOptions(opts)

	params := url.Values{"search_id": {strconv.Itoa(searchID)}}
	endpoint := c.endpoint("book", "/book", params).
		WithHeader("Accept", o.imageType.MIMEType())
	return newAction(c, endpoint, imageDecoder(o.imageType, searchID))
}

// BookImage retrieves the image of a book returned by Search.
func (c *Client) BookImage(book Book, opts ...CallOption) *Action[*Book] {
	return c.Book(book.SearchID, opts...)
}

// Health reports the circuit breaker state, if the client has one.
func (c *Client) Health() HealthStatus {
	if c.breaker == nil {
		return HealthStatus{Healthy: true, Status: "no-breaker"}
	}
	return c.breaker.Health()
}

// Stats returns a snapshot of the executor statistics.
func (c *Client) Stats() ExecutorStats {
	return c.executor.Stats()
}

func (c *Client) endpoint(name, path string, params url.Values) *Endpoint {
	u := c.config.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return NewEndpoint(name, http.MethodGet, u)
}

// dispatch runs work on its own goroutine once a slot is free, then runs
// the continuation work returned after releasing the slot. It returns when
// the continuation has finished. If ctx is done before a slot frees up,
// rejected runs instead.
func (c *Client) dispatch(ctx context.Context, work func() (continuation func()), rejected func(err error)) {
	done := make(chan struct{})
	go func() {
		defer close(done)

		if err := c.slots.Acquire(ctx, 1); err != nil {
			rejected(err)
			return
		}
		continuation := work()
		c.slots.Release(1)

		if continuation != nil {
			continuation()
		}
	}()
	<-done
}
