package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/paperbird/harvest/fetch"
	"github.com/paperbird/harvest/preset"
	"github.com/paperbird/harvest/selector"
)

// ErrNoListPage is returned by Walk for presets without a list_page rule.
var ErrNoListPage = errors.New("crawl: preset has no list_page rule")

// Walk fetches the preset's listing pages and returns discovered article
// links, deduplicated by normalized URL in first-seen order. Page failures
// past the first page of a seed are recorded and skipped; a failed seed
// page fails the walk. Robots denials never fail the walk, even on a seed.
func (c *Crawler) Walk(ctx context.Context) ([]ListItem, int, []PageFailure, error) {
	lp := c.snap.Config.ListPage
	if lp == nil {
		return nil, 0, nil, ErrNoListPage
	}

	seeds := lp.Seeds
	if len(seeds) == 0 {
		seeds = []string{defaultSeed(c.snap.Config)}
	}

	maxPages := lp.Pagination.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	var (
		items    []ListItem
		failures []PageFailure
		pages    int
		seen     = make(map[string]bool) // item URLs, whole invocation
		visited  = make(map[string]bool) // listing pages, loop guard
	)

	for _, seed := range seeds {
		pageURL := seed
		for pageNo := 1; pageURL != "" && pageNo <= maxPages; pageNo++ {
			if err := ctx.Err(); err != nil {
				return items, pages, failures, err
			}
			if visited[pageURL] {
				break
			}
			visited[pageURL] = true

			finalURL, rawHTML, err := c.fetchPage(ctx, pageURL)
			if err != nil {
				failures = append(failures, PageFailure{URL: pageURL, Cause: err.Error()})
				if pageNo == 1 && !errors.Is(err, fetch.ErrRobotsDisallowed) {
					return items, pages, failures, fmt.Errorf("crawl: seed page: %w", err)
				}
				break
			}
			pages++

			doc, err := selector.ParseDocument(rawHTML)
			if err != nil {
				failures = append(failures, PageFailure{URL: pageURL, Cause: err.Error()})
				break
			}

			found := c.collectItems(doc, finalURL, seen, &items)
			c.log.Debug("crawl: listing page walked",
				"preset", c.snap.Name, "url", pageURL, "items", found)

			pageURL = c.nextPage(doc, seed, finalURL)
		}
	}

	return items, pages, failures, nil
}

func (c *Crawler) collectItems(doc *goquery.Document, finalURL string, seen map[string]bool, items *[]ListItem) int {
	lp := c.snap.Config.ListPage
	base := finalURL
	if lp.URLPrefix != "" {
		base = lp.URLPrefix
	}

	found := 0
	c.itemsExpr.Nodes(doc.Selection).Each(func(_ int, item *goquery.Selection) {
		href := hrefValue(item, c.urlExpr)
		if href == "" {
			return
		}
		abs := normalizeItemURL(resolveURL(base, href))
		if abs == "" || seen[abs] {
			return
		}
		if !c.snap.Config.Match.AllowsURL(abs) {
			return
		}
		seen[abs] = true
		found++
		*items = append(*items, ListItem{
			URL:         abs,
			Title:       evalText(item, c.titleExpr),
			PublishedAt: evalText(item, c.dateExpr),
		})
	})
	return found
}

// nextPage determines the next listing page URL, or "" at the end of the
// chain.
func (c *Crawler) nextPage(doc *goquery.Document, seed, finalURL string) string {
	lp := c.snap.Config.ListPage
	switch lp.Pagination.Type {
	case "selector":
		href := hrefValue(doc.Selection, c.pageExpr)
		if href == "" {
			return ""
		}
		return resolveURL(finalURL, href)
	case "token":
		if token := doc.Find(`meta[name="next-token"]`).AttrOr("content", ""); token != "" {
			return withPageToken(seed, token)
		}
		if href := doc.Find(`link[rel="next"]`).AttrOr("href", ""); href != "" {
			return resolveURL(finalURL, href)
		}
		return ""
	default: // "none"
		return ""
	}
}

// defaultSeed is the listing entry point for presets that declare none.
func defaultSeed(p *preset.Preset) string {
	return "https://" + p.Match.Domains[0] + "/"
}

// withPageToken resubmits the seed URL with the continuation token.
func withPageToken(seed, token string) string {
	u, err := url.Parse(seed)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("page_token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// normalizeItemURL canonicalizes an item link for dedup: fragments dropped,
// the rest untouched.
func normalizeItemURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// hrefValue evaluates a link-bearing expression against root. Expressions
// without an attribute suffix read href, the natural default for links.
func hrefValue(root *goquery.Selection, e *selector.Expression) string {
	if e == nil {
		return ""
	}
	nodes := e.Nodes(root)
	if nodes.Length() == 0 {
		return ""
	}
	n := nodes.First()
	switch e.Attribute {
	case "":
		return strings.TrimSpace(n.AttrOr("href", ""))
	case "text":
		return strings.TrimSpace(n.Text())
	default:
		return strings.TrimSpace(n.AttrOr(e.Attribute, ""))
	}
}

// evalText evaluates an optional expression to a single string, "" on nil
// or no match.
func evalText(root *goquery.Selection, e *selector.Expression) string {
	if e == nil {
		return ""
	}
	v, err := e.Eval(root)
	if err != nil {
		return ""
	}
	if v.Multiple {
		return v.Join("\n\n")
	}
	return v.First()
}
