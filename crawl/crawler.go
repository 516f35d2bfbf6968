package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paperbird/harvest/fetch"
	"github.com/paperbird/harvest/preset"
	"github.com/paperbird/harvest/render"
	"github.com/paperbird/harvest/selector"
)

// Config configures a Crawler. The zero value gives a plain HTTP fetcher,
// no renderer, and 4 concurrent article workers.
type Config struct {
	Fetcher     fetch.Fetcher
	Renderer    render.Renderer // used only when the preset enables rendering
	Concurrency int
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.Fetcher == nil {
		c.Fetcher = fetch.NewHTTPFetcher(fetch.Config{})
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Crawler runs one preset snapshot: listing walk plus article extraction.
// Each invocation should build its own Crawler so the per-domain rate
// limiter and robots cache cover exactly one run.
type Crawler struct {
	cfg       Config
	snap      *preset.Snapshot
	limiter   *fetch.DomainLimiter
	robots    *fetch.RobotsCache
	extractor *Extractor
	log       *slog.Logger

	itemsExpr, urlExpr, titleExpr, dateExpr, pageExpr *selector.Expression
}

// New builds a Crawler for snap. snap.Config must have passed validation.
func New(snap *preset.Snapshot, cfg Config) (*Crawler, error) {
	cfg.defaults()
	p := snap.Config

	limiter := fetch.NewDomainLimiter(p.Fetch.RateLimitRPS)
	c := &Crawler{
		cfg:     cfg,
		snap:    snap,
		limiter: limiter,
		robots:  fetch.NewRobotsCache(cfg.Fetcher, "", limiter),
		log:     cfg.Logger.With("preset", snap.Name, "version", snap.Version),
	}

	x, err := NewExtractor(p)
	if err != nil {
		return nil, err
	}
	c.extractor = x

	if lp := p.ListPage; lp != nil {
		if c.itemsExpr, err = selector.Parse(lp.Selectors.Items); err != nil {
			return nil, fmt.Errorf("crawl: items selector: %w", err)
		}
		urlSel := lp.Selectors.URL
		if urlSel == "" {
			urlSel = "@href"
		}
		if c.urlExpr, err = selector.Parse(urlSel); err != nil {
			return nil, fmt.Errorf("crawl: url selector: %w", err)
		}
		if lp.Selectors.Title != "" {
			if c.titleExpr, err = selector.Parse(lp.Selectors.Title); err != nil {
				return nil, fmt.Errorf("crawl: title selector: %w", err)
			}
		}
		if lp.Selectors.PublishedAt != "" {
			if c.dateExpr, err = selector.Parse(lp.Selectors.PublishedAt); err != nil {
				return nil, fmt.Errorf("crawl: published_at selector: %w", err)
			}
		}
		if lp.Pagination.Type == preset.PaginationSelector {
			if c.pageExpr, err = selector.Parse(lp.Pagination.Selector); err != nil {
				return nil, fmt.Errorf("crawl: pagination selector: %w", err)
			}
		}
	}

	return c, nil
}

// Extractor exposes the crawler's compiled extractor for single-page use
// (the test harness extracts without walking).
func (c *Crawler) Extractor() *Extractor { return c.extractor }

// FetchPage retrieves one page under the preset's fetch, robots, and rate
// policies, rendering when the preset asks for it. Returns the final URL
// for relative resolution along with the HTML.
func (c *Crawler) FetchPage(ctx context.Context, rawURL string) (finalURL, html string, err error) {
	return c.fetchPage(ctx, rawURL)
}

func (c *Crawler) fetchPage(ctx context.Context, rawURL string) (string, string, error) {
	p := c.snap.Config
	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return "", "", err
	}
	if err := c.robots.Check(ctx, rawURL, &p.Fetch); err != nil {
		return "", "", err
	}

	if p.Render != nil && p.Render.Enabled && c.cfg.Renderer != nil {
		html, err := c.cfg.Renderer.Render(ctx, rawURL, p.Render)
		if err != nil {
			return "", "", err
		}
		return rawURL, html, nil
	}

	res, err := c.cfg.Fetcher.Fetch(ctx, rawURL, &p.Fetch)
	if err != nil {
		return "", "", err
	}
	return res.FinalURL, string(res.Body), nil
}

// Run performs one full invocation: walk the listing pages, then fetch and
// extract every discovered article with bounded concurrency. Item failures
// are recorded in the report; only a seed failure or context cancellation
// returns an error (alongside the partial report).
func (c *Crawler) Run(ctx context.Context) (*Report, error) {
	rep := &Report{
		Preset:    c.snap.Name,
		Version:   c.snap.Version,
		Checksum:  c.snap.Checksum,
		StartedAt: time.Now(),
	}

	items, pages, failures, err := c.Walk(ctx)
	rep.Items = items
	rep.Pages = pages
	rep.Failures = failures
	if err != nil {
		rep.FinishedAt = time.Now()
		return rep, err
	}

	if c.snap.Config.ArticlePage == nil || len(items) == 0 {
		rep.FinishedAt = time.Now()
		return rep, nil
	}

	var (
		mu       sync.Mutex
		articles = make([]*Article, len(items))
		warnings = make([][]Warning, len(items))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, it := range items {
		g.Go(func() error {
			// No new fetch once the invocation is cancelled.
			if err := gctx.Err(); err != nil {
				return err
			}
			finalURL, rawHTML, err := c.fetchPage(gctx, it.URL)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				rep.Failures = append(rep.Failures, PageFailure{URL: it.URL, Cause: err.Error()})
				mu.Unlock()
				return nil
			}
			art, warns, err := c.extractor.Extract(finalURL, rawHTML, it)
			if err != nil {
				mu.Lock()
				rep.Failures = append(rep.Failures, PageFailure{URL: it.URL, Cause: err.Error()})
				mu.Unlock()
				return nil
			}
			articles[i] = art
			warnings[i] = warns
			return nil
		})
	}
	err = g.Wait()

	for i, art := range articles {
		if art == nil {
			continue
		}
		rep.Articles = append(rep.Articles, art)
		rep.Warnings = append(rep.Warnings, warnings[i]...)
	}

	rep.FinishedAt = time.Now()
	c.log.Info("crawl: invocation finished",
		"pages", rep.Pages, "items", len(rep.Items),
		"articles", len(rep.Articles), "failures", len(rep.Failures))
	return rep, err
}
