// Package preset defines the declarative scraping configuration ("preset"),
// its strict structural validator, and the canonical content checksum.
//
// A preset describes how to crawl and extract articles from one site family:
// which domains it covers, how listing pages are paginated, which selectors
// locate each article field, and how extracted content is normalized. Presets
// arrive as JSON documents; Validate turns them into a strongly-typed Preset
// or rejects them with a path-qualified ValidationError. Nothing past this
// package operates on loosely-typed data.
//
// Usage:
//
//	p, doc, err := preset.ValidateBytes(raw)
//	if err != nil { ... }
//	sum, _ := preset.Checksum(doc)
package preset

// Preset is the validated, strongly-typed form of a configuration document.
// (Name, Version) is the preset's identity and is immutable per version;
// a Preset is never mutated after construction.
type Preset struct {
	Name          string           `json:"name"`
	Version       string           `json:"version"`
	SchemaVersion int              `json:"schema_version"`
	Title         string           `json:"title,omitempty"`
	Description   string           `json:"description,omitempty"`
	Match         Match            `json:"match"`
	Fetch         FetchPolicy      `json:"fetch"`
	Render        *RenderPolicy    `json:"render,omitempty"`
	ListPage      *ListPageRule    `json:"list_page,omitempty"`
	ArticlePage   *ArticlePageRule `json:"article_page,omitempty"`
	Tests         []TestCase       `json:"tests,omitempty"`
}

// Match restricts which hosts and URLs a preset may touch.
type Match struct {
	Domains []string `json:"domains"`
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// RobotsPolicy values. The set is closed: anything else fails validation.
const (
	RobotsRespect = "respect"
	RobotsIgnore  = "ignore"
)

// FetchPolicy controls transport behaviour for every page fetch.
type FetchPolicy struct {
	TimeoutSec   int               `json:"timeout_sec"`
	RateLimitRPS float64           `json:"rate_limit_rps,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	RobotsPolicy string            `json:"robots_policy,omitempty"`
}

// RenderPolicy requests headless rendering before extraction.
type RenderPolicy struct {
	Enabled    bool   `json:"enabled"`
	WaitFor    string `json:"wait_for,omitempty"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// Pagination types. Closed set.
const (
	PaginationNone     = "none"
	PaginationSelector = "selector"
	PaginationToken    = "token"
)

// ListPageRule drives the listing-page walk.
type ListPageRule struct {
	Seeds      []string      `json:"seeds,omitempty"`
	URLPrefix  string        `json:"url_prefix,omitempty"`
	Selectors  ListSelectors `json:"selectors"`
	Pagination Pagination    `json:"pagination"`
}

// ListSelectors locates items and their fields on a listing page.
// Items is required; the rest are optional selector expressions.
type ListSelectors struct {
	Items       string `json:"items"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Pagination controls how the walker advances past the seed page.
type Pagination struct {
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
	MaxPages int    `json:"max_pages"`
}

// ArticlePageRule drives single-article extraction.
type ArticlePageRule struct {
	Selectors ArticleSelectors `json:"selectors"`
	Cleanup   Cleanup          `json:"cleanup"`
	Normalize Normalize        `json:"normalize"`
	Media     Media            `json:"media"`
}

// ArticleSelectors is the closed set of ten extractable article fields.
// Each value is a selector expression; empty means "not configured".
type ArticleSelectors struct {
	Title        string `json:"title,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"`
	Content      string `json:"content,omitempty"`
	Images       string `json:"images,omitempty"`
	CanonicalURL string `json:"canonical_url,omitempty"`
	SourceURL    string `json:"source_url,omitempty"`
	Summary      string `json:"summary,omitempty"`
	Category     string `json:"category,omitempty"`
	Author       string `json:"author,omitempty"`
	SourceName   string `json:"source_name,omitempty"`
}

// Cleanup removes or unwraps nodes before content extraction.
type Cleanup struct {
	Remove []string `json:"remove,omitempty"`
	Unwrap []string `json:"unwrap,omitempty"`
}

// Normalize is the fixed vocabulary of post-extraction transforms.
type Normalize struct {
	HTMLToMd            bool `json:"html_to_md,omitempty"`
	CollapseWhitespace  bool `json:"collapse_whitespace,omitempty"`
	MakeAbsoluteURLs    bool `json:"make_absolute_urls,omitempty"`
	StripTrackingParams bool `json:"strip_tracking_params,omitempty"`
}

// Media holds media-specific extraction rules.
type Media struct {
	Images ImageRules `json:"images"`
}

// ImageRules controls image URL resolution and filtering.
type ImageRules struct {
	Prefix              string `json:"prefix,omitempty"`
	MinWidth            int    `json:"min_width,omitempty"`
	StripTrackingParams bool   `json:"strip_tracking_params,omitempty"`
}

// TestCase is a declared regression expectation replayed by the harness.
type TestCase struct {
	URL    string `json:"url"`
	Expect Expect `json:"expect"`
}

// Expect holds the assertions for one test case. Zero values mean
// "not asserted" (TitleContains empty, ContentMinLen 0, ImagesCountMin -1
// is not needed because 0 images always passes a 0 threshold).
type Expect struct {
	TitleContains  string `json:"title_contains,omitempty"`
	ContentMinLen  int    `json:"content_min_len,omitempty"`
	ImagesCountMin int    `json:"images_count_min,omitempty"`
}

// Snapshot is an immutable deep copy of an active preset's configuration,
// handed to a consumer at activation (or refresh) time. Consumers never see
// later registry mutations through a snapshot; they refresh explicitly and
// expose the Checksum they are currently running.
type Snapshot struct {
	Name          string  `json:"name"`
	Version       string  `json:"version"`
	SchemaVersion int     `json:"schema_version"`
	Checksum      string  `json:"checksum"`
	Config        *Preset `json:"config"`
}
