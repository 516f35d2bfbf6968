package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/paperbird/harvest/preset"
)

// ErrRobotsDisallowed is returned when robots.txt forbids fetching a URL
// under a "respect" robots policy.
var ErrRobotsDisallowed = errors.New("fetch: disallowed by robots.txt")

// RobotsCache fetches and caches robots.txt per scheme://host. A missing or
// unfetchable robots.txt allows everything, matching crawler convention.
// Safe for concurrent use.
type RobotsCache struct {
	fetcher   Fetcher
	userAgent string
	limiter   *DomainLimiter

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData // nil entry = unfetchable, allow all
}

// NewRobotsCache builds a cache that retrieves robots.txt through fetcher.
// The robots.txt fetch itself counts against limiter, so it shares the
// domain's budget with regular page fetches; a nil limiter skips pacing.
func NewRobotsCache(fetcher Fetcher, userAgent string, limiter *DomainLimiter) *RobotsCache {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &RobotsCache{
		fetcher:   fetcher,
		userAgent: userAgent,
		limiter:   limiter,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Check returns ErrRobotsDisallowed if policy is "respect" and the host's
// robots.txt forbids rawURL for our user agent. Under "ignore" (or an empty
// policy) it never blocks.
func (c *RobotsCache) Check(ctx context.Context, rawURL string, policy *preset.FetchPolicy) error {
	if policy == nil || policy.RobotsPolicy != preset.RobotsRespect {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("fetch: robots check: %w", err)
	}
	data, err := c.robotsFor(ctx, u, policy)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	if !data.FindGroup(c.userAgent).Test(u.Path) {
		return fmt.Errorf("%w: %s", ErrRobotsDisallowed, rawURL)
	}
	return nil
}

func (c *RobotsCache) robotsFor(ctx context.Context, u *url.URL, policy *preset.FetchPolicy) (*robotstxt.RobotsData, error) {
	key := u.Scheme + "://" + u.Host

	c.mu.Lock()
	data, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return data, nil
	}

	robotsURL := key + "/robots.txt"
	if err := c.limiter.Wait(ctx, robotsURL); err != nil {
		return nil, err
	}
	res, err := c.fetcher.Fetch(ctx, robotsURL, policy)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		data = nil // unreachable robots.txt allows all
	} else {
		data, err = robotstxt.FromBytes(res.Body)
		if err != nil {
			data = nil
		}
	}

	c.mu.Lock()
	c.cache[key] = data
	c.mu.Unlock()
	return data, nil
}
