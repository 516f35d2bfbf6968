package fetch

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// DomainLimiter applies a per-host token bucket so list and article fetches
// against the same site share one budget. A zero or negative rps disables
// limiting. Safe for concurrent use.
type DomainLimiter struct {
	mu       sync.Mutex
	rps      float64
	limiters map[string]*rate.Limiter
}

// NewDomainLimiter builds a limiter allowing rps requests per second per
// host, with a burst of 1 (strict pacing).
func NewDomainLimiter(rps float64) *DomainLimiter {
	return &DomainLimiter{rps: rps, limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until the host of rawURL has a token, or ctx is done.
func (l *DomainLimiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil || l.rps <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil // unparseable URLs fail later in the fetcher
	}
	return l.limiter(u.Hostname()).Wait(ctx)
}

func (l *DomainLimiter) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.rps), 1)
		l.limiters[host] = lim
	}
	return lim
}
