// Package crawl implements the two halves of a crawl invocation: walking a
// site's listing pages into deduplicated article links, and extracting a
// normalized Article from each page. Both operate on a preset snapshot and
// never touch the registry, so an invocation is unaffected by concurrent
// preset changes.
package crawl

import (
	"fmt"
	"time"
)

// ListItem is one discovered article link, in first-seen order.
// Title and PublishedAt are raw listing-page values and may be empty;
// the extractor uses them as fallbacks.
type ListItem struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// ImageRef is one extracted image. Width is 0 when not knowable from the
// page (no width attribute and no dimension hint in the URL).
type ImageRef struct {
	URL   string `json:"url"`
	Width int    `json:"width,omitempty"`
}

// Article is the extraction result for one page. SourceURL is always set;
// every other field is best-effort per the preset's selectors.
type Article struct {
	SourceURL    string     `json:"source_url"`
	CanonicalURL string     `json:"canonical_url,omitempty"`
	Title        string     `json:"title"`
	PublishedAt  time.Time  `json:"published_at"`
	Content      string     `json:"content"`
	ContentHTML  string     `json:"content_html,omitempty"`
	Images       []ImageRef `json:"images,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	Category     string     `json:"category,omitempty"`
	Author       string     `json:"author,omitempty"`
	SourceName   string     `json:"source_name,omitempty"`
}

// Warning is a recoverable extraction defect: a configured selector matched
// nothing. The article is still produced; the warning rides along in the
// report so preset authors can spot layout drift.
type Warning struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
}

func (w *Warning) Error() string {
	return fmt.Sprintf("selector %q matched nothing on %s", w.Selector, w.URL)
}

// PageFailure records a page that could not be fetched or parsed during an
// invocation. Failures are data, not control flow: the walk continues.
type PageFailure struct {
	URL   string `json:"url"`
	Cause string `json:"cause"`
}

// Report is the outcome of one crawl invocation.
type Report struct {
	Preset     string        `json:"preset"`
	Version    string        `json:"version"`
	Checksum   string        `json:"checksum"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Pages      int           `json:"pages"`
	Items      []ListItem    `json:"items"`
	Articles   []*Article    `json:"articles"`
	Failures   []PageFailure `json:"failures,omitempty"`
	Warnings   []Warning     `json:"warnings,omitempty"`
}
