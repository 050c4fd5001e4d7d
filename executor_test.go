package aghpb_test

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	aghpb "github.com/JohnPlummer/jp-go-aghpb"
)

var _ = Describe("Executor", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		server *apiServer
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		server = newAPIServer(jsonResponse(http.StatusOK, `{"version":"1.2.0"}`))
	})

	AfterEach(func() {
		cancel()
		server.Close()
	})

	Describe("Execute", func() {
		Context("successful request", func() {
			It("returns the response on the first send", func() {
				executor := aghpb.NewExecutor(
					aghpb.WithHTTPClient(server.Client()),
					aghpb.WithLogger(quietLogger()),
				)

				resp, err := executor.Execute(ctx, aghpb.NewEndpoint("status", http.MethodGet, server.URL+"/nya"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(string(resp.Body)).To(Equal(`{"version":"1.2.0"}`))
				Expect(resp.RequestID).NotTo(BeEmpty())

				stats := executor.Stats()
				Expect(stats.TotalSends).To(Equal(int64(1)))
				Expect(stats.TotalRetries).To(Equal(int64(0)))
				Expect(stats.TotalSuccesses).To(Equal(int64(1)))
				Expect(stats.TotalFailures).To(Equal(int64(0)))
			})

			It("sends the endpoint headers, the user agent and a request id", func() {
				executor := aghpb.NewExecutor(
					aghpb.WithHTTPClient(server.Client()),
					aghpb.WithUserAgent("aghpb-test"),
					aghpb.WithLogger(quietLogger()),
				)
				endpoint := aghpb.NewEndpoint("random", http.MethodGet, server.URL+"/random").
					WithHeader("Accept", "image/jpeg")

				resp, err := executor.Execute(ctx, endpoint)
				Expect(err).NotTo(HaveOccurred())

				requests := server.getRequests()
				Expect(requests).To(HaveLen(1))
				Expect(requests[0].Method).To(Equal(http.MethodGet))
				Expect(requests[0].Header.Get("Accept")).To(Equal("image/jpeg"))
				Expect(requests[0].Header.Get("User-Agent")).To(Equal("aghpb-test"))
				Expect(requests[0].Header.Get("X-Request-Id")).To(Equal(resp.RequestID))
			})

			It("does not modify the endpoint when adding headers", func() {
				endpoint := aghpb.NewEndpoint("random", http.MethodGet, server.URL+"/random")
				withAccept := endpoint.WithHeader("Accept", "image/png")

				Expect(endpoint.Header.Get("Accept")).To(BeEmpty())
				Expect(withAccept.Header.Get("Accept")).To(Equal("image/png"))
			})

			It("returns error statuses unchanged without retrying", func() {
				server.setHandler(jsonResponse(http.StatusInternalServerError, `{"detail":"boom"}`))
				executor := aghpb.NewExecutor(
					aghpb.WithHTTPClient(server.Client()),
					aghpb.WithLogger(quietLogger()),
				)

				resp, err := executor.Execute(ctx, aghpb.NewEndpoint("status", http.MethodGet, server.URL+"/nya"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(server.getRequestCount()).To(Equal(1))
			})
		})

		Context("transport failures", func() {
			It("retries and succeeds within the budget", func() {
				transport := &flakyTransport{next: server.Client().Transport, failures: 2}
				executor := aghpb.NewExecutor(
					aghpb.WithHTTPClient(&http.Client{Transport: transport}),
					aghpb.WithMaxRetries(3),
					aghpb.WithLogger(quietLogger()),
				)

				resp, err := executor.Execute(ctx, aghpb.NewEndpoint("status", http.MethodGet, server.URL+"/nya"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(transport.getCallCount()).To(Equal(3))

				stats := executor.Stats()
				Expect(stats.TotalSends).To(Equal(int64(3)))
				Expect(stats.TotalRetries).To(Equal(int64(2)))
				Expect(stats.TotalSuccesses).To(Equal(int64(1)))
			})

			DescribeTable("sends exactly budget+1 times before failing",
				func(retries int) {
					transport := &flakyTransport{next: server.Client().Transport, failures: -1}
					executor := aghpb.NewExecutor(
						aghpb.WithHTTPClient(&http.Client{Transport: transport}),
						aghpb.WithMaxRetries(retries),
						aghpb.WithLogger(quietLogger()),
					)

					resp, err := executor.Execute(ctx, aghpb.NewEndpoint("status", http.MethodGet, server.URL+"/nya"))
					Expect(err).To(HaveOccurred())
					Expect(resp).To(BeNil())
					Expect(errors.Is(err, aghpb.ErrTransport)).To(BeTrue())
					Expect(errors.Is(err, errConnectionReset)).To(BeTrue())
					Expect(transport.getCallCount()).To(Equal(retries + 1))

					stats := executor.Stats()
					Expect(stats.TotalFailures).To(Equal(int64(1)))
					Expect(stats.TotalRetries).To(Equal(int64(retries)))
					Expect(stats.LastError).To(MatchError(err))
				},
				Entry("no retries", 0),
				Entry("default budget", 3),
				Entry("larger budget", 5),
			)

			It("uses a budget of 3 by default", func() {
				transport := &flakyTransport{next: server.Client().Transport, failures: -1}
				executor := aghpb.NewExecutor(
					aghpb.WithHTTPClient(&http.Client{Transport: transport}),
					aghpb.WithLogger(quietLogger()),
				)

				_, err := executor.Execute(ctx, aghpb.NewEndpoint("status", http.MethodGet, server.URL+"/nya"))
				Expect(err).To(HaveOccurred())
				Expect(transport.getCallCount()).To(Equal(4))
			})

			It("reports client timeouts as timeout errors", func() {
				server.setHandler(func(w http.ResponseWriter, r *http.Request) {
					select {
					case <-time.After(500 * time.Millisecond):
					case <-r.Context().Done():
					}
				})
				httpClient := server.Client()
				httpClient.Timeout = 20 * time.Millisecond
				executor := aghpb.NewExecutor(
					aghpb.WithHTTPClient(httpClient),
					aghpb.WithMaxRetries(0),
					aghpb.WithLogger(quietLogger()),
				)

				_, err := executor.Execute(ctx, aghpb.NewEndpoint("status", http.MethodGet, server.URL+"/nya"))
				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, aghpb.ErrTransport)).To(BeTrue())
				Expect(pkgerrors.IsTimeout(err)).To(BeTrue())
			})

			It("retries client timeouts within the budget", func() {
				server.setHandler(func(w http.ResponseWriter, r *http.Request) {
					select {
					case <-time.After(500 * time.Millisecond):
					case <-r.Context().Done():
					}
				})
				httpClient := server.Client()
				httpClient.Timeout = 20 * time.Millisecond
				executor := aghpb.NewExecutor(
					aghpb.WithHTTPClient(httpClient),
					aghpb.WithMaxRetries(2),
					aghpb.WithLogger(quietLogger()),
				)

				_, err := executor.Execute(ctx, aghpb.NewEndpoint("status", http.MethodGet, server.URL+"/nya"))
				Expect(errors.Is(err, aghpb.ErrTransport)).To(BeTrue())
				Expect(pkgerrors.IsTimeout(err)).To(BeTrue())
				Expect(executor.Stats().TotalSends).To(Equal(int64(3)))
				Expect(server.getRequestCount()).To(Equal(3))
			})

			It("stops retrying once the caller's deadline expires", func() {
				server.setHandler(func(w http.ResponseWriter, r *http.Request) {
					<-r.Context().Done()
				})
				executor := aghpb.NewExecutor(
					aghpb.WithHTTPClient(server.Client()),
					aghpb.WithMaxRetries(3),
					aghpb.WithLogger(quietLogger()),
				)

				shortCtx, shortCancel := context.WithTimeout(ctx, 50*time.Millisecond)
				defer shortCancel()

				_, err := executor.Execute(shortCtx, aghpb.NewEndpoint("status", http.MethodGet, server.URL+"/nya"))
				Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
				Expect(executor.Stats().TotalSends).To(Equal(int64(1)))
			})

			It("uses a custom error classifier", func() {
				transport := &flakyTransport{next: server.Client().Transport, failures: -1}
				executor := aghpb.NewExecutor(
					aghpb.WithHTTPClient(&http.Client{Transport: transport}),
					aghpb.WithErrorClassifier(neverRetry{}),
					aghpb.WithLogger(quietLogger()),
				)

				_, err := executor.Execute(ctx, aghpb.NewEndpoint("status", http.MethodGet, server.URL+"/nya"))
				Expect(err).To(HaveOccurred())
				Expect(transport.getCallCount()).To(Equal(1))
			})
		})

		Context("invalid input", func() {
			It("rejects a nil endpoint", func() {
				executor := aghpb.NewExecutor(aghpb.WithLogger(quietLogger()))
				_, err := executor.Execute(ctx, nil)
				Expect(errors.Is(err, aghpb.ErrIllegalUsage)).To(BeTrue())
			})

			It("rejects an unparseable URL without sending", func() {
				executor := aghpb.NewExecutor(
					aghpb.WithHTTPClient(server.Client()),
					aghpb.WithLogger(quietLogger()),
				)
				_, err := executor.Execute(ctx, aghpb.NewEndpoint("status", http.MethodGet, "http://[::1]:namedport/nya"))
				Expect(errors.Is(err, aghpb.ErrIllegalUsage)).To(BeTrue())
				Expect(server.getRequestCount()).To(Equal(0))
			})
		})

		Context("context cancellation", func() {
			It("returns immediately when context is already done", func() {
				canceledCtx, cancel := context.WithCancel(context.Background())
				cancel()

				executor := aghpb.NewExecutor(
					aghpb.WithHTTPClient(server.Client()),
					aghpb.WithLogger(quietLogger()),
				)

				_, err := executor.Execute(canceledCtx, aghpb.NewEndpoint("status", http.MethodGet, server.URL+"/nya"))
				Expect(errors.Is(err, context.Canceled)).To(BeTrue())
				Expect(server.getRequestCount()).To(Equal(0))
			})
		})
	})

	Describe("rate limiting", func() {
		var (
			now    time.Time
			waits  []time.Duration
			client *aghpb.Client
		)

		rateLimitedOnce := func(reset string) http.HandlerFunc {
			var sent atomic.Bool
			return func(w http.ResponseWriter, r *http.Request) {
				if sent.CompareAndSwap(false, true) {
					w.Header().Set("x-ratelimit-remaining", "0")
					w.Header().Set("x-ratelimit-reset", reset)
				}
				jsonResponse(http.StatusOK, `{"version":"1.2.0"}`)(w, r)
			}
		}

		BeforeEach(func() {
			now = time.Unix(1_700_000_000, 0)
			waits = nil
			client = server.newClient(aghpb.WithMaxRetries(0))
			aghpb.SetExecutorClock(client,
				func() time.Time { return now },
				func(ctx context.Context, d time.Duration) error {
					waits = append(waits, d)
					return nil
				},
			)
		})

		It("waits until the reset time and sends again", func() {
			server.setHandler(rateLimitedOnce(strconv.FormatInt(now.Unix()+5, 10)))

			status, err := client.Status().Execute(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Version).To(Equal("1.2.0"))
			Expect(waits).To(Equal([]time.Duration{5 * time.Second}))
			Expect(server.getRequestCount()).To(Equal(2))
		})

		It("does not consume the retry budget", func() {
			server.setHandler(rateLimitedOnce(strconv.FormatInt(now.Unix()+2, 10)))

			_, err := client.Status().Execute(ctx)
			Expect(err).NotTo(HaveOccurred())

			stats := client.Stats()
			Expect(stats.TotalSends).To(Equal(int64(2)))
			Expect(stats.TotalRetries).To(Equal(int64(0)))
			Expect(stats.RateLimitWaits).To(Equal(int64(1)))
		})

		It("keeps waiting while the quota stays exhausted", func() {
			var limited atomic.Int32
			reset := strconv.FormatInt(now.Unix()+1, 10)
			server.setHandler(func(w http.ResponseWriter, r *http.Request) {
				if limited.Add(1) <= 4 {
					w.Header().Set("x-ratelimit-remaining", "0")
					w.Header().Set("x-ratelimit-reset", reset)
				}
				jsonResponse(http.StatusOK, `{"version":"1.2.0"}`)(w, r)
			})

			_, err := client.Status().Execute(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(waits).To(HaveLen(4))
			Expect(waits).To(HaveEach(time.Second))
			Expect(server.getRequestCount()).To(Equal(5))
		})

		DescribeTable("returns the response without waiting",
			func(remaining, reset string) {
				server.setHandler(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("x-ratelimit-remaining", remaining)
					if reset != "" {
						w.Header().Set("x-ratelimit-reset", reset)
					}
					jsonResponse(http.StatusOK, `{"version":"1.2.0"}`)(w, r)
				})

				_, err := client.Status().Execute(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(waits).To(BeEmpty())
				Expect(server.getRequestCount()).To(Equal(1))
			},
			Entry("quota left", "7", "1700000100"),
			Entry("reset in the past", "0", "1699999990"),
			Entry("reset now", "0", "1700000000"),
			Entry("missing reset", "0", ""),
			Entry("malformed reset", "0", "soon"),
		)

		It("fails with a rate limit error when the wait is interrupted", func() {
			reset := strconv.FormatInt(now.Unix()+60, 10)
			server.setHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("x-ratelimit-remaining", "0")
				w.Header().Set("x-ratelimit-reset", reset)
				jsonResponse(http.StatusOK, `{"version":"1.2.0"}`)(w, r)
			})
			aghpb.SetExecutorClock(client, nil, func(ctx context.Context, d time.Duration) error {
				return context.Canceled
			})

			_, err := client.Status().Execute(ctx)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, pkgerrors.ErrRateLimited)).To(BeTrue())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(errors.Is(err, aghpb.ErrTransport)).To(BeFalse())
		})

		It("sleeps for real with the default clock", func() {
			realClient := server.newClient()
			reset := time.Now().Unix() + 1
			server.setHandler(rateLimitedOnce(strconv.FormatInt(reset, 10)))

			_, err := realClient.Status().Execute(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(time.Now()).To(BeTemporally(">=", time.Unix(reset, 0)))
		})
	})
})

type neverRetry struct{}

func (neverRetry) IsRetryable(error) bool { return false }
