package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/market-stats/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration

	// MaxRetries is the total number of attempts per Fetch. Default: 3.
	MaxRetries int

	// InitialDelay is the backoff before the first retry; retry n sleeps
	// InitialDelay * 2^n. Default: 1s.
	InitialDelay time.Duration

	// RequestsPerSecond paces requests per host. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int

	// Client overrides the default http.Client (tests).
	Client *http.Client
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with retry and per-host pacing.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
	retry  resilience.RetryConfig

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "market-stats/1.0"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	retry := resilience.FromRetryConfig(opts.MaxRetries, 0, 0)
	retry.InitialBackoff = opts.InitialDelay
	retry.ShouldRetry = resilience.IsTransient

	return &HTTPFetcher{
		client:   client,
		opts:     opts,
		retry:    retry,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// limiterFor returns the adaptive limiter for the URL's host, or nil when
// pacing is disabled.
func (f *HTTPFetcher) limiterFor(rawURL string) *AdaptiveLimiter {
	if f.opts.RequestsPerSecond <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[u.Host]
	if !ok {
		lim = NewAdaptiveLimiter(rate.Limit(f.opts.RequestsPerSecond), f.opts.Burst)
		f.limiters[u.Host] = lim
	}
	return lim
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*RawResponse, error) {
	adaptive := f.limiterFor(rawURL)
	log := zap.L().With(zap.String("url", redact(rawURL)))

	retry := f.retry
	logRetry := resilience.RetryLogger("statistics-source", redact(rawURL))
	retry.OnRetry = func(attempt int, err error) {
		if resilience.IsRateLimited(err) {
			fields := []zap.Field{zap.Int("attempt", attempt)}
			if adaptive != nil {
				fields = append(fields, zap.Float64("rate", float64(adaptive.Limit())))
			}
			log.Warn("rate limited (429), backing off", fields...)
			return
		}
		logRetry(attempt, err)
	}

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*RawResponse, error) {
		if adaptive != nil {
			if err := adaptive.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "fetch: rate limiter wait")
			}
		}
		return f.attempt(ctx, rawURL, adaptive)
	})
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(err, "fetch: cancelled")
	}
	if resilience.IsTransient(err) {
		return nil, eris.Wrapf(resilience.ErrRetriesExceeded, "fetch: %d attempts against %s, last error: %v",
			f.opts.MaxRetries, redact(rawURL), err)
	}
	return nil, err
}

func (f *HTTPFetcher) attempt(ctx context.Context, rawURL string, adaptive *AdaptiveLimiter) (*RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetch: transport"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		if adaptive != nil {
			adaptive.OnRateLimit()
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.NewTransientError(resilience.ErrRateLimited, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &resilience.StatusError{StatusCode: resp.StatusCode, URL: redact(rawURL)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetch: read body"), 0)
	}

	if adaptive != nil {
		adaptive.OnSuccess()
	}

	return &RawResponse{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// redact strips the API key from a URL before logging.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
