package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/naka-gawa/repo-miner/internal/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxRetry  = 4
	defaultRetryBase = 500 * time.Millisecond
	maxRetryWait     = 30 * time.Second
)

// Options configures the HTTP client behind the gateway.
type Options struct {
	// BaseURL overrides https://api.github.com (GitHub Enterprise or tests).
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests; zero disables pacing.
	RequestsPerSecond float64
	MaxRetries        int
	RetryBase         time.Duration
	Metrics           *metrics.Metrics
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
}

// newHTTPClient assembles the transport chain, outermost first:
// oauth2 (only with a token) -> secondary rate limit waiter -> pacing -> metrics -> retry.
func newHTTPClient(token string, opts Options) (*http.Client, error) {
	var rt http.RoundTripper = &retryTransport{
		base:       http.DefaultTransport,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		sleep:      sleepContext,
	}
	rt = opts.Metrics.InstrumentRoundTripper(rt)
	if opts.RequestsPerSecond > 0 {
		rt = &pacedTransport{
			base:    rt,
			limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		}
	}
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(rt, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	rt = rateLimitWaiter
	if token != "" {
		rt = &oauth2.Transport{
			Base:   rt,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		}
	}
	return &http.Client{Transport: rt, Timeout: opts.Timeout}, nil
}

// pacedTransport waits on a token bucket before every request.
type pacedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// retryTransport retries requests without a body on network errors,
// primary rate limiting and transient 5xx responses.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	retryBase  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req)
		retryable := req.Body == nil || req.Body == http.NoBody
		if !retryable || attempt >= t.maxRetries {
			return resp, err
		}
		var wait time.Duration
		switch {
		case err != nil:
			if req.Context().Err() != nil {
				return nil, err
			}
			wait = t.backoff(attempt)
		case resp.StatusCode == http.StatusTooManyRequests:
			wait = retryAfter(resp.Header)
			if wait <= 0 {
				wait = t.backoff(attempt)
			}
		case resp.StatusCode == http.StatusBadGateway,
			resp.StatusCode == http.StatusServiceUnavailable,
			resp.StatusCode == http.StatusGatewayTimeout:
			wait = t.backoff(attempt)
		default:
			return resp, nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		if err := t.sleep(req.Context(), wait); err != nil {
			return nil, err
		}
	}
}

func (t *retryTransport) backoff(attempt int) time.Duration {
	d := t.retryBase << uint(attempt)
	if d <= 0 || d > maxRetryWait {
		return maxRetryWait
	}
	return d
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryWait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
