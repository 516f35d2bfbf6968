// Package fetch provides the transport layer of the crawl engine: a Fetcher
// abstraction, an HTTP implementation with SSRF protection and bounded body
// reads, a per-domain rate limiter, and a robots.txt cache.
//
// Usage:
//
//	f := fetch.NewHTTPFetcher(fetch.Config{})
//	res, err := f.Fetch(ctx, "https://example.com/news", &p.Fetch)
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/paperbird/harvest/horosafe"
	"github.com/paperbird/harvest/preset"
)

// DefaultUserAgent identifies the collector to crawled sites.
const DefaultUserAgent = "PaperbirdWebCollector/1.0 (+https://paperbird.ai)"

const maxRedirects = 5

// Result is a completed page fetch. FinalURL differs from URL when the
// server redirected; relative URL resolution must use FinalURL.
type Result struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
}

// Fetcher retrieves one page under a preset's fetch policy.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, policy *preset.FetchPolicy) (*Result, error)
}

// TransportError wraps any transport-level failure (connection, timeout,
// non-2xx status). StatusCode is 0 when no response was received.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config customises the HTTP fetcher.
type Config struct {
	UserAgent   string
	MaxBody     int64
	ValidateURL func(string) error // SSRF guard, defaults to horosafe.ValidateURL
	Client      *http.Client       // base client; Timeout is set per request from the policy
}

func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxBody == 0 {
		c.MaxBody = horosafe.MaxResponseBody
	}
	if c.ValidateURL == nil {
		c.ValidateURL = horosafe.ValidateURL
	}
	if c.Client == nil {
		c.Client = &http.Client{}
	}
}

// HTTPFetcher fetches pages over HTTP(S). Safe for concurrent use.
type HTTPFetcher struct {
	cfg Config
}

// NewHTTPFetcher builds a fetcher. Zero-value Config gives the production
// defaults (SSRF guard on, 10 MiB body cap).
func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	cfg.defaults()
	cfg.Client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		// Redirect targets go through the same SSRF guard as the seed.
		return cfg.ValidateURL(req.URL.String())
	}
	return &HTTPFetcher{cfg: cfg}
}

// Fetch retrieves rawURL. The policy's timeout bounds the whole request
// including body read; policy headers are sent verbatim, with User-Agent
// added unless the policy overrides it. Any non-2xx status is a
// *TransportError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, policy *preset.FetchPolicy) (*Result, error) {
	if err := f.cfg.ValidateURL(rawURL); err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	timeout := 30 * time.Second
	if policy != nil && policy.TimeoutSec > 0 {
		timeout = time.Duration(policy.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if policy != nil {
		for k, v := range policy.Headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	body, err := horosafe.LimitedReadAll(resp.Body, f.cfg.MaxBody)
	if err != nil {
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	return &Result{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}
