package ingest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyFetcher implements Fetcher with a fresh Colly collector per request.
// Unlike Colly's usual setup it installs no retry handler: a failed visit is
// reported once and the caller moves on. Rate limits are held per host across
// collectors, since a collector's own limit rule only sees its single visit.
type CollyFetcher struct {
	UserAgent            string
	MaxBodySize          int // bytes, 0 = colly default
	BlockPrivateNetworks bool

	limiters hostLimiters
}

// NewCollyFetcher creates a CollyFetcher with sensible defaults.
func NewCollyFetcher(blockPrivate bool) *CollyFetcher {
	return &CollyFetcher{
		UserAgent:            defaultUserAgent,
		MaxBodySize:          defaultMaxBodyBytes,
		BlockPrivateNetworks: blockPrivate,
	}
}

// buildCollector creates a configured Colly collector for a single visit.
func (f *CollyFetcher) buildCollector(ctx context.Context, opts FetchOptions) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	c.SetRequestTimeout(timeout)

	// Reuse the net/http transport so TLS strictness and the private
	// network guard behave the same under both engines.
	client := newHTTPClient(f.BlockPrivateNetworks, opts.InsecureTLS)
	c.WithTransport(client.Transport)
	if client.CheckRedirect != nil {
		c.SetRedirectHandler(client.CheckRedirect)
	}

	if len(opts.Headers) > 0 {
		c.OnRequest(func(r *colly.Request) {
			for k, v := range opts.Headers {
				r.Headers.Set(k, v)
			}
		})
	}

	return c
}

// Fetch implements the Fetcher interface, returning a FetchedDocument.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string, opts FetchOptions) (*FetchedDocument, error) {
	if err := f.limiters.wait(ctx, targetURL, opts.RateLimitRPS); err != nil {
		return nil, NewFetchError(targetURL, 0, fmt.Errorf("rate limit wait: %w", err))
	}
	c := f.buildCollector(ctx, opts)

	var (
		result   *FetchedDocument
		fetchErr *FetchError
	)

	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil && r.StatusCode >= 300 {
			status = r.StatusCode
		}
		fetchErr = NewFetchError(targetURL, status, err)
	})

	// Visit is synchronous: callbacks have run by the time it returns.
	if err := c.Visit(targetURL); err != nil && fetchErr == nil {
		fetchErr = NewFetchError(targetURL, 0, fmt.Errorf("visit failed: %w", err))
	}

	if fetchErr != nil {
		return nil, fetchErr
	}
	if result == nil {
		return nil, NewFetchError(targetURL, 0, fmt.Errorf("no response received"))
	}
	if result.StatusCode < http.StatusOK || result.StatusCode > 299 {
		return nil, NewFetchError(targetURL, result.StatusCode, nil)
	}

	return result, nil
}
