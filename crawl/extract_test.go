package crawl

import (
	"strings"
	"testing"
	"time"

	"github.com/paperbird/harvest/preset"
)

func articlePreset(ap *preset.ArticlePageRule) *preset.Preset {
	return &preset.Preset{
		Name:          "demo",
		Version:       "1.0.0",
		SchemaVersion: 1,
		Match:         preset.Match{Domains: []string{"example.com"}},
		Fetch:         preset.FetchPolicy{TimeoutSec: 10},
		ArticlePage:   ap,
	}
}

const articleHTML = `<html><head>
<link rel="canonical" href="/news/42?utm_source=feed">
</head><body>
<script>tracker()</script>
<div class="wrapper"><article>
  <h1>Harbor Expansion Approved</h1>
  <time datetime="2024-05-12T10:30:00Z">12 May 2024</time>
  <div class="body">
    <p>The council approved the <b>expansion</b>.</p>
    <p>Work starts in June.</p>
    <img src="/img/800x600/harbor.jpg">
    <img src="/img/icon.jpg" width="32">
    <img src="/img/800x600/harbor.jpg">
  </div>
  <span class="author">R. Ames</span>
</article></div>
</body></html>`

func TestExtract_Basic(t *testing.T) {
	// WHAT: Selectors, cleanup, markdown normalization, canonical resolution,
	// and image filtering all apply on one realistic page.
	x, err := NewExtractor(articlePreset(&preset.ArticlePageRule{
		Selectors: preset.ArticleSelectors{
			Title:        "h1@text",
			PublishedAt:  "time@datetime",
			Content:      "div.body",
			Images:       "div.body img@src*",
			CanonicalURL: `link[rel="canonical"]@href`,
			Author:       "span.author@text",
		},
		Cleanup: preset.Cleanup{Remove: []string{"script"}, Unwrap: []string{"div.wrapper"}},
		Normalize: preset.Normalize{
			HTMLToMd:            true,
			CollapseWhitespace:  true,
			MakeAbsoluteURLs:    true,
			StripTrackingParams: true,
		},
		Media: preset.Media{Images: preset.ImageRules{MinWidth: 100}},
	}))
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	art, warns, err := x.Extract("https://example.com/news/42", articleHTML, ListItem{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(warns) != 0 {
		t.Errorf("warnings = %v", warns)
	}
	if art.Title != "Harbor Expansion Approved" {
		t.Errorf("Title = %q", art.Title)
	}
	want := time.Date(2024, 5, 12, 10, 30, 0, 0, time.UTC)
	if !art.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", art.PublishedAt, want)
	}
	if !strings.Contains(art.Content, "**expansion**") {
		t.Errorf("Content not markdown: %q", art.Content)
	}
	if strings.Contains(art.Content, "tracker()") {
		t.Errorf("script survived cleanup: %q", art.Content)
	}
	if art.CanonicalURL != "https://example.com/news/42" {
		t.Errorf("CanonicalURL = %q (tracking params should be stripped)", art.CanonicalURL)
	}
	if art.Author != "R. Ames" {
		t.Errorf("Author = %q", art.Author)
	}
	// Icon dropped by min_width, duplicate harbor.jpg dropped by dedup.
	if len(art.Images) != 1 {
		t.Fatalf("Images = %v, want exactly the harbor photo", art.Images)
	}
	if art.Images[0].URL != "https://example.com/img/800x600/harbor.jpg" || art.Images[0].Width != 800 {
		t.Errorf("Images[0] = %+v", art.Images[0])
	}
}

func TestExtract_Fallbacks(t *testing.T) {
	// WHAT: Missing title falls back to the listing item, then to the URL;
	// missing date falls back to the listing value, then to now.
	x, err := NewExtractor(articlePreset(&preset.ArticlePageRule{
		Selectors: preset.ArticleSelectors{Title: "h1@text?", PublishedAt: "time@datetime?", Content: "article"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	x.now = func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) }

	html := `<html><body><article><p>text</p></article></body></html>`

	art, _, err := x.Extract("https://example.com/a", html, ListItem{Title: "From Listing", PublishedAt: "2024-05-12"})
	if err != nil {
		t.Fatal(err)
	}
	if art.Title != "From Listing" {
		t.Errorf("Title = %q, want listing fallback", art.Title)
	}
	if art.PublishedAt.Year() != 2024 {
		t.Errorf("PublishedAt = %v, want listing fallback", art.PublishedAt)
	}

	art, _, err = x.Extract("https://example.com/a", html, ListItem{})
	if err != nil {
		t.Fatal(err)
	}
	if art.Title != "https://example.com/a" {
		t.Errorf("Title = %q, want URL fallback", art.Title)
	}
	if !art.PublishedAt.Equal(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v, want injected now", art.PublishedAt)
	}
}

func TestExtract_ContentWarning(t *testing.T) {
	// WHAT: A configured content selector that matches nothing produces an
	// empty article plus a Warning, not an error.
	x, err := NewExtractor(articlePreset(&preset.ArticlePageRule{
		Selectors: preset.ArticleSelectors{Content: "div.missing"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	art, warns, err := x.Extract("https://example.com/a", "<html><body><p>x</p></body></html>", ListItem{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if art.Content != "" {
		t.Errorf("Content = %q, want empty", art.Content)
	}
	if len(warns) != 1 || warns[0].Selector != "div.missing" {
		t.Errorf("warns = %v", warns)
	}
}

func TestExtract_WholeDocumentWithoutContentSelector(t *testing.T) {
	// WHAT: No content selector means the whole body is the content.
	x, err := NewExtractor(articlePreset(&preset.ArticlePageRule{}))
	if err != nil {
		t.Fatal(err)
	}
	art, warns, err := x.Extract("https://example.com/a",
		"<html><body><p>whole page text</p></body></html>", ListItem{})
	if err != nil {
		t.Fatal(err)
	}
	if len(warns) != 0 {
		t.Errorf("warns = %v", warns)
	}
	if !strings.Contains(art.Content, "whole page text") {
		t.Errorf("Content = %q", art.Content)
	}
}

func TestExtract_Unwrap(t *testing.T) {
	// WHAT: unwrap drops the wrapper element but keeps its children in place.
	x, err := NewExtractor(articlePreset(&preset.ArticlePageRule{
		Selectors: preset.ArticleSelectors{Content: "div.body"},
		Cleanup:   preset.Cleanup{Unwrap: []string{"span.decor"}},
	}))
	if err != nil {
		t.Fatal(err)
	}
	html := `<html><body><div class="body"><p>a <span class="decor">kept</span> b</p></div></body></html>`
	art, _, err := x.Extract("https://example.com/a", html, ListItem{})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(art.ContentHTML, "decor") {
		t.Errorf("wrapper survived: %q", art.ContentHTML)
	}
	if !strings.Contains(art.Content, "a kept b") {
		t.Errorf("children lost: %q", art.Content)
	}
}

func TestExtract_StripTrackingParamsInContent(t *testing.T) {
	// WHAT: With strip_tracking_params on, links inside the extracted content
	// lose their utm_* parameters too, in both the HTML and markdown forms.
	x, err := NewExtractor(articlePreset(&preset.ArticlePageRule{
		Selectors: preset.ArticleSelectors{Content: "div.body"},
		Normalize: preset.Normalize{
			HTMLToMd:            true,
			MakeAbsoluteURLs:    true,
			StripTrackingParams: true,
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	html := `<html><body><div class="body">
		<p>See <a href="/x?utm_source=feed&id=7">the report</a>.</p>
	</div></body></html>`
	art, _, err := x.Extract("https://example.com/news/1", html, ListItem{})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(art.ContentHTML, "utm_source") {
		t.Errorf("tracking param survived in ContentHTML: %q", art.ContentHTML)
	}
	if !strings.Contains(art.ContentHTML, "https://example.com/x?id=7") {
		t.Errorf("ContentHTML = %q, want stripped absolute link", art.ContentHTML)
	}
	if !strings.Contains(art.Content, "(https://example.com/x?id=7)") {
		t.Errorf("Content = %q, want stripped link in markdown", art.Content)
	}
}

func TestExtract_MultiValueContent(t *testing.T) {
	// WHAT: A multi expression joins matched nodes with a blank line.
	x, err := NewExtractor(articlePreset(&preset.ArticlePageRule{
		Selectors: preset.ArticleSelectors{Content: "p.part@text*"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	html := `<html><body><p class="part">one</p><p class="part">two</p></body></html>`
	art, _, err := x.Extract("https://example.com/a", html, ListItem{})
	if err != nil {
		t.Fatal(err)
	}
	if art.Content != "one\n\ntwo" {
		t.Errorf("Content = %q", art.Content)
	}
}

func TestExtract_ImagePrefix(t *testing.T) {
	// WHAT: media.images.prefix overrides the page URL as resolution base.
	x, err := NewExtractor(articlePreset(&preset.ArticlePageRule{
		Selectors: preset.ArticleSelectors{Content: "article", Images: "img@src*"},
		Media:     preset.Media{Images: preset.ImageRules{Prefix: "https://cdn.example.com/media/"}},
	}))
	if err != nil {
		t.Fatal(err)
	}
	html := `<html><body><article><img src="p/1.jpg"></article></body></html>`
	art, _, err := x.Extract("https://example.com/a", html, ListItem{})
	if err != nil {
		t.Fatal(err)
	}
	if len(art.Images) != 1 || art.Images[0].URL != "https://cdn.example.com/media/p/1.jpg" {
		t.Errorf("Images = %v", art.Images)
	}
}
