// Package fetcher is the single chokepoint for outbound calls to the
// statistics source. Every request is paced per host and retried with
// exponential backoff on rate limiting and transport failures.
package fetcher

import (
	"context"
	"net/http"
)

// RawResponse is a successful (2xx) response body.
type RawResponse struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher performs a single logical GET against the statistics source.
type Fetcher interface {
	// Fetch returns the 2xx response for url. A non-429 non-2xx status is
	// returned as a *resilience.StatusError without retrying. Exhausted
	// retries yield resilience.ErrRetriesExceeded.
	Fetch(ctx context.Context, url string) (*RawResponse, error)
}
