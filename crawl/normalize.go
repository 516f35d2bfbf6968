package crawl

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

var spaceRe = regexp.MustCompile(`[ \t]+`)
var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// collapseWhitespace squeezes runs of spaces/tabs and caps blank-line runs
// at one, trimming the result.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRe.ReplaceAllString(l, " "))
	}
	out := strings.Join(lines, "\n")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// resolveURL resolves ref against base. Unparseable inputs come back as-is;
// they will surface as fetch errors later rather than being dropped here.
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// stripTrackingParams removes utm_* query parameters from rawURL, keeping
// the remaining parameters in their original order (including blank values).
func stripTrackingParams(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}
	var kept []string
	for _, pair := range strings.Split(u.RawQuery, "&") {
		key := pair
		if i := strings.Index(pair, "="); i >= 0 {
			key = pair[:i]
		}
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			continue
		}
		kept = append(kept, pair)
	}
	u.RawQuery = strings.Join(kept, "&")
	return u.String()
}

// rewriteURLAttrs applies fn to every href and src attribute under sel,
// whatever element carries it (links, images, iframes, media sources).
// Mutates the underlying document.
func rewriteURLAttrs(sel *goquery.Selection, fn func(string) string) {
	sel.Find("[href]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("href"); ok {
			s.SetAttr("href", fn(v))
		}
	})
	sel.Find("[src]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("src"); ok {
			s.SetAttr("src", fn(v))
		}
	})
}

// makeAbsoluteURLs rewrites href/src attributes in sel to absolute URLs
// resolved against base.
func makeAbsoluteURLs(sel *goquery.Selection, base string) {
	rewriteURLAttrs(sel, func(ref string) string {
		return resolveURL(base, ref)
	})
}

// Site chrome often wraps dates in decoration ("News | 12.05.2024 | Staff").
// Candidates are tried in order: the whole string, date-shaped snippets,
// then delimiter-split fragments.
var (
	dateSnippetRe  = regexp.MustCompile(`\d{1,2}[./-]\d{1,2}[./-]\d{2,4}(?:\s+\d{1,2}:\d{2})?`)
	dateDelimiters = regexp.MustCompile(`[|•·/—–]`)
)

// parseDatetime extracts a timestamp from a raw page string. Returns the
// zero time and false when nothing in the string parses.
func parseDatetime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	candidates := []string{raw}
	candidates = append(candidates, dateSnippetRe.FindAllString(raw, -1)...)
	for _, part := range dateDelimiters.Split(raw, -1) {
		if p := strings.TrimSpace(part); p != "" {
			candidates = append(candidates, p)
		}
	}

	for _, c := range candidates {
		if t, err := dateparse.ParseAny(c); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// URL dimension hints, e.g. ".../1200x630/photo.jpg" or "?w=800".
var (
	urlDimsRe  = regexp.MustCompile(`(\d{2,4})x\d{2,4}`)
	urlWidthRe = regexp.MustCompile(`[?&](?:w|width)=(\d{2,4})`)
)

// imageWidth determines an image's width from its width attribute or, failing
// that, from dimension hints in the URL. Returns 0 when unknowable.
func imageWidth(img *goquery.Selection, absURL string) int {
	if attr, ok := img.Attr("width"); ok {
		if w, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(attr), "px")); err == nil && w > 0 {
			return w
		}
	}
	if m := urlWidthRe.FindStringSubmatch(absURL); m != nil {
		if w, err := strconv.Atoi(m[1]); err == nil {
			return w
		}
	}
	if m := urlDimsRe.FindStringSubmatch(absURL); m != nil {
		if w, err := strconv.Atoi(m[1]); err == nil {
			return w
		}
	}
	return 0
}
