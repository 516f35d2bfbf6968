package crawl

import (
	"fmt"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/paperbird/harvest/preset"
	"github.com/paperbird/harvest/selector"
)

// fieldExpr pairs a compiled expression with its source text for warnings.
type fieldExpr struct {
	raw  string
	expr *selector.Expression
}

func compileField(raw string) (*fieldExpr, error) {
	if raw == "" {
		return nil, nil
	}
	e, err := selector.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &fieldExpr{raw: raw, expr: e}, nil
}

// Extractor turns a fetched article page into an Article per one preset's
// article_page rule. All expressions are compiled at construction, so a
// validated preset never fails mid-extraction on selector syntax.
// Safe for concurrent use.
type Extractor struct {
	p        *preset.Preset
	md       *converter.Converter
	sanitize *bluemonday.Policy

	title, publishedAt, content, images       *fieldExpr
	canonicalURL, sourceURL, summary          *fieldExpr
	category, author, sourceName              *fieldExpr
	removeMatchers, unwrapMatchers            []cascadia.Selector

	now func() time.Time
}

// NewExtractor compiles p's article selectors. p must have passed
// preset.Validate; selector errors here indicate a corrupted snapshot.
func NewExtractor(p *preset.Preset) (*Extractor, error) {
	x := &Extractor{
		p:        p,
		md:       newMarkdownConverter(),
		sanitize: bluemonday.UGCPolicy(),
		now:      time.Now,
	}

	if p.ArticlePage == nil {
		return x, nil
	}
	ap := p.ArticlePage

	var err error
	fields := []struct {
		dst **fieldExpr
		raw string
	}{
		{&x.title, ap.Selectors.Title},
		{&x.publishedAt, ap.Selectors.PublishedAt},
		{&x.content, ap.Selectors.Content},
		{&x.images, ap.Selectors.Images},
		{&x.canonicalURL, ap.Selectors.CanonicalURL},
		{&x.sourceURL, ap.Selectors.SourceURL},
		{&x.summary, ap.Selectors.Summary},
		{&x.category, ap.Selectors.Category},
		{&x.author, ap.Selectors.Author},
		{&x.sourceName, ap.Selectors.SourceName},
	}
	for _, f := range fields {
		if *f.dst, err = compileField(f.raw); err != nil {
			return nil, fmt.Errorf("crawl: article selector: %w", err)
		}
	}
	for _, css := range ap.Cleanup.Remove {
		m, err := selector.Compile(css)
		if err != nil {
			return nil, fmt.Errorf("crawl: cleanup remove: %w", err)
		}
		x.removeMatchers = append(x.removeMatchers, m)
	}
	for _, css := range ap.Cleanup.Unwrap {
		m, err := selector.Compile(css)
		if err != nil {
			return nil, fmt.Errorf("crawl: cleanup unwrap: %w", err)
		}
		x.unwrapMatchers = append(x.unwrapMatchers, m)
	}
	return x, nil
}

// Extract builds an Article from the raw HTML of pageURL. item carries
// listing-page fallbacks and may be the zero value. Warnings report
// configured selectors that matched nothing; the article is still returned.
func (x *Extractor) Extract(pageURL, rawHTML string, item ListItem) (*Article, []Warning, error) {
	doc, err := selector.ParseDocument(rawHTML)
	if err != nil {
		return nil, nil, fmt.Errorf("crawl: extract %s: %w", pageURL, err)
	}

	for _, m := range x.removeMatchers {
		doc.FindMatcher(m).Remove()
	}
	for _, m := range x.unwrapMatchers {
		unwrap(doc.FindMatcher(m))
	}

	norm := preset.Normalize{}
	if x.p.ArticlePage != nil {
		norm = x.p.ArticlePage.Normalize
	}
	if norm.MakeAbsoluteURLs {
		makeAbsoluteURLs(doc.Selection, pageURL)
	}
	if norm.StripTrackingParams {
		rewriteURLAttrs(doc.Selection, stripTrackingParams)
	}

	var warns []Warning
	root := doc.Selection
	art := &Article{SourceURL: pageURL}

	// Title: selector, then listing title, then the URL itself.
	art.Title = x.evalQuiet(root, x.title)
	if art.Title == "" {
		art.Title = item.Title
	}
	if art.Title == "" {
		art.Title = pageURL
	}

	// Published: selector, then listing value, then extraction time.
	rawDate := x.evalQuiet(root, x.publishedAt)
	if rawDate == "" {
		rawDate = item.PublishedAt
	}
	if t, ok := parseDatetime(rawDate); ok {
		art.PublishedAt = t
	} else {
		art.PublishedAt = x.now()
	}

	// Content: configured selector, else the whole document body.
	contentHTML, contentWarn := x.evalContent(root, doc, pageURL)
	if contentWarn != nil {
		warns = append(warns, *contentWarn)
	}
	art.ContentHTML = x.sanitize.Sanitize(contentHTML)
	art.Content = x.renderContent(contentHTML, pageURL, norm)

	if x.canonicalURL != nil {
		if v := x.evalQuiet(root, x.canonicalURL); v != "" {
			art.CanonicalURL = resolveURL(pageURL, v)
		}
	}
	if x.sourceURL != nil {
		if v := x.evalQuiet(root, x.sourceURL); v != "" {
			art.SourceURL = resolveURL(pageURL, v)
		}
	}
	if norm.StripTrackingParams {
		art.SourceURL = stripTrackingParams(art.SourceURL)
		if art.CanonicalURL != "" {
			art.CanonicalURL = stripTrackingParams(art.CanonicalURL)
		}
	}

	art.Summary = x.evalQuiet(root, x.summary)
	art.Category = x.evalQuiet(root, x.category)
	art.Author = x.evalQuiet(root, x.author)
	art.SourceName = x.evalQuiet(root, x.sourceName)

	art.Images = x.extractImages(root, pageURL)

	return art, warns, nil
}

// evalQuiet evaluates an optional field: nil or no-match yields "".
func (x *Extractor) evalQuiet(root *goquery.Selection, f *fieldExpr) string {
	if f == nil {
		return ""
	}
	v, err := f.expr.Eval(root)
	if err != nil {
		return ""
	}
	if v.Multiple {
		return v.Join("\n\n")
	}
	return v.First()
}

// evalContent returns the content HTML. A configured selector that matches
// nothing yields empty content plus a Warning; an unconfigured selector
// falls back to the document body.
func (x *Extractor) evalContent(root *goquery.Selection, doc *goquery.Document, pageURL string) (string, *Warning) {
	if x.content == nil {
		body, err := doc.Find("body").Html()
		if err != nil {
			return "", nil
		}
		return body, nil
	}
	v, err := x.content.expr.Eval(root)
	if err != nil {
		return "", &Warning{URL: pageURL, Selector: x.content.raw}
	}
	if v.Multiple {
		return v.Join("\n\n"), nil
	}
	return v.First(), nil
}

// renderContent produces the article's text form from its content HTML.
func (x *Extractor) renderContent(contentHTML, pageURL string, norm preset.Normalize) string {
	var out string
	if norm.HTMLToMd {
		md, err := x.md.ConvertString(contentHTML, converter.WithDomain(pageURL))
		if err != nil {
			out = textOf(contentHTML)
		} else {
			out = md
		}
	} else {
		out = textOf(contentHTML)
	}
	if norm.CollapseWhitespace {
		out = collapseWhitespace(out)
	}
	return strings.TrimSpace(out)
}

func (x *Extractor) extractImages(root *goquery.Selection, pageURL string) []ImageRef {
	if x.images == nil || x.p.ArticlePage == nil {
		return nil
	}
	rules := x.p.ArticlePage.Media.Images

	base := pageURL
	if rules.Prefix != "" {
		base = rules.Prefix
	}
	attrName := x.images.expr.Attribute
	if attrName == "" || attrName == "text" {
		attrName = "src"
	}

	var out []ImageRef
	seen := make(map[string]bool)
	x.images.expr.Nodes(root).Each(func(_ int, img *goquery.Selection) {
		raw := strings.TrimSpace(img.AttrOr(attrName, ""))
		if raw == "" {
			return
		}
		abs := resolveURL(base, raw)
		if rules.StripTrackingParams {
			abs = stripTrackingParams(abs)
		}
		if seen[abs] {
			return
		}
		w := imageWidth(img, abs)
		if rules.MinWidth > 0 && w > 0 && w < rules.MinWidth {
			return
		}
		seen[abs] = true
		out = append(out, ImageRef{URL: abs, Width: w})
	})
	return out
}

// textOf strips markup, returning the plain text of an HTML fragment.
func textOf(fragment string) string {
	doc, err := selector.ParseDocument(fragment)
	if err != nil {
		return fragment
	}
	return strings.TrimSpace(doc.Text())
}

// unwrap replaces each matched node with its own children, preserving
// document order.
func unwrap(sel *goquery.Selection) {
	sel.Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			unwrapNode(n)
		}
	})
}

func unwrapNode(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for child := n.FirstChild; child != nil; {
		next := child.NextSibling
		n.RemoveChild(child)
		parent.InsertBefore(child, n)
		child = next
	}
	parent.RemoveChild(n)
}
