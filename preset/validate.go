package preset

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/paperbird/harvest/selector"
)

const (
	minTimeoutSec = 1
	maxTimeoutSec = 120
	minMaxPages   = 1
	maxMaxPages   = 20
)

var (
	nameRe   = regexp.MustCompile(`^[a-z0-9_-]{3,80}$`)
	semverRe = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)
	domainRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// allowedTopLevel is the closed set of recognized top-level keys. Unnamed
// fields never pass through silently: the engine has no mechanism to act on
// them, so anything else is a hard rejection.
var allowedTopLevel = keySet("name", "version", "schema_version", "title",
	"description", "match", "fetch", "render", "list_page", "article_page", "tests")

// ValidateBytes parses raw JSON and validates it. It returns the typed
// preset plus the parsed document tree (the latter is what Checksum hashes,
// so no-op re-imports fingerprint identically regardless of defaults).
func ValidateBytes(raw []byte) (*Preset, map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, errAt("", fmt.Sprintf("document is not valid JSON: %v", err))
	}
	p, err := Validate(doc)
	if err != nil {
		return nil, nil, err
	}
	return p, doc, nil
}

// Validate checks an untyped document against the preset schema and returns
// the strongly-typed form. Pure: no side effects, no partial acceptance —
// the first violation aborts with a path-qualified ValidationError.
func Validate(doc map[string]any) (*Preset, error) {
	if err := checkKeys("", doc, allowedTopLevel); err != nil {
		return nil, err
	}

	p := &Preset{}
	var err error

	if p.Name, err = requireString(doc, "", "name"); err != nil {
		return nil, err
	}
	if !nameRe.MatchString(p.Name) {
		return nil, errAt("name", fmt.Sprintf("%q does not match ^[a-z0-9_-]{3,80}$", p.Name))
	}

	if p.Version, err = requireString(doc, "", "version"); err != nil {
		return nil, err
	}
	if !semverRe.MatchString(p.Version) {
		return nil, errAt("version", fmt.Sprintf("%q is not a semantic version", p.Version))
	}

	p.SchemaVersion = 1
	if v, ok := doc["schema_version"]; ok {
		n, err := asInt(v, "schema_version")
		if err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, errAt("schema_version", "must be >= 1")
		}
		p.SchemaVersion = n
	}

	if p.Title, err = optionalString(doc, "", "title"); err != nil {
		return nil, err
	}
	if p.Description, err = optionalString(doc, "", "description"); err != nil {
		return nil, err
	}

	if err := validateMatch(doc, &p.Match); err != nil {
		return nil, err
	}
	if err := validateFetch(doc, &p.Fetch); err != nil {
		return nil, err
	}
	if p.Render, err = validateRender(doc); err != nil {
		return nil, err
	}
	if p.ListPage, err = validateListPage(doc); err != nil {
		return nil, err
	}
	if p.ArticlePage, err = validateArticlePage(doc); err != nil {
		return nil, err
	}
	if p.Tests, err = validateTests(doc); err != nil {
		return nil, err
	}

	return p, nil
}

func validateMatch(doc map[string]any, m *Match) error {
	obj, err := requireObject(doc, "", "match")
	if err != nil {
		return err
	}
	if err := checkKeys("match", obj, keySet("domains", "include", "exclude")); err != nil {
		return err
	}

	domains, err := requireStringList(obj, "match", "domains")
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		return errAt("match.domains", "must not be empty")
	}
	for i, d := range domains {
		if !domainRe.MatchString(d) {
			return errAt(fmt.Sprintf("match.domains[%d]", i), fmt.Sprintf("%q is not a valid host pattern", d))
		}
	}
	m.Domains = domains

	if m.Include, err = optionalStringList(obj, "match", "include"); err != nil {
		return err
	}
	if m.Exclude, err = optionalStringList(obj, "match", "exclude"); err != nil {
		return err
	}
	return nil
}

func validateFetch(doc map[string]any, f *FetchPolicy) error {
	obj, err := requireObject(doc, "", "fetch")
	if err != nil {
		return err
	}
	if err := checkKeys("fetch", obj, keySet("timeout_sec", "rate_limit_rps", "headers", "robots_policy")); err != nil {
		return err
	}

	v, ok := obj["timeout_sec"]
	if !ok {
		return errAt("fetch.timeout_sec", "is required")
	}
	if f.TimeoutSec, err = asInt(v, "fetch.timeout_sec"); err != nil {
		return err
	}
	if f.TimeoutSec < minTimeoutSec || f.TimeoutSec > maxTimeoutSec {
		return errAt("fetch.timeout_sec", fmt.Sprintf("must be in [%d,%d]", minTimeoutSec, maxTimeoutSec))
	}

	if v, ok := obj["rate_limit_rps"]; ok {
		n, ok := v.(float64)
		if !ok {
			return errAt("fetch.rate_limit_rps", "must be a number")
		}
		if n <= 0 {
			return errAt("fetch.rate_limit_rps", "must be positive")
		}
		f.RateLimitRPS = n
	}

	if v, ok := obj["headers"]; ok {
		hdr, ok := v.(map[string]any)
		if !ok {
			return errAt("fetch.headers", "must be an object of strings")
		}
		f.Headers = make(map[string]string, len(hdr))
		for k, hv := range hdr {
			s, ok := hv.(string)
			if !ok {
				return errAt("fetch.headers."+k, "must be a string")
			}
			f.Headers[k] = s
		}
	}

	f.RobotsPolicy = RobotsRespect
	if v, ok := obj["robots_policy"]; ok {
		s, ok := v.(string)
		if !ok || (s != RobotsRespect && s != RobotsIgnore) {
			return errAt("fetch.robots_policy", `must be "respect" or "ignore"`)
		}
		f.RobotsPolicy = s
	}
	return nil
}

func validateRender(doc map[string]any) (*RenderPolicy, error) {
	v, ok := doc["render"]
	if !ok {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errAt("render", "must be an object")
	}
	if err := checkKeys("render", obj, keySet("enabled", "wait_for", "timeout_sec")); err != nil {
		return nil, err
	}

	r := &RenderPolicy{}
	if v, ok := obj["enabled"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, errAt("render.enabled", "must be a boolean")
		}
		r.Enabled = b
	}
	var err error
	if r.WaitFor, err = optionalString(obj, "render", "wait_for"); err != nil {
		return nil, err
	}
	if r.WaitFor != "" {
		if _, err := selector.Compile(r.WaitFor); err != nil {
			return nil, errAt("render.wait_for", err.Error())
		}
	}
	if v, ok := obj["timeout_sec"]; ok {
		n, err := asInt(v, "render.timeout_sec")
		if err != nil {
			return nil, err
		}
		if n < minTimeoutSec || n > maxTimeoutSec {
			return nil, errAt("render.timeout_sec", fmt.Sprintf("must be in [%d,%d]", minTimeoutSec, maxTimeoutSec))
		}
		r.TimeoutSec = n
	}
	return r, nil
}

func validateListPage(doc map[string]any) (*ListPageRule, error) {
	v, ok := doc["list_page"]
	if !ok {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errAt("list_page", "must be an object")
	}
	if err := checkKeys("list_page", obj, keySet("seeds", "url_prefix", "selectors", "pagination")); err != nil {
		return nil, err
	}

	rule := &ListPageRule{}
	var err error
	if rule.Seeds, err = optionalStringList(obj, "list_page", "seeds"); err != nil {
		return nil, err
	}
	if rule.URLPrefix, err = optionalString(obj, "list_page", "url_prefix"); err != nil {
		return nil, err
	}

	sel, err := requireObject(obj, "list_page", "selectors")
	if err != nil {
		return nil, err
	}
	// No synonyms accepted: selector semantics must stay unambiguous
	// across presets, so "headline" and friends are hard rejections.
	if err := checkKeys("list_page.selectors", sel, keySet("items", "url", "title", "published_at")); err != nil {
		return nil, err
	}
	if rule.Selectors.Items, err = requireString(sel, "list_page.selectors", "items"); err != nil {
		return nil, err
	}
	if _, err := selector.Compile(rule.Selectors.Items); err != nil {
		return nil, errAt("list_page.selectors.items", err.Error())
	}
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"url", &rule.Selectors.URL},
		{"title", &rule.Selectors.Title},
		{"published_at", &rule.Selectors.PublishedAt},
	} {
		if *f.dst, err = optionalString(sel, "list_page.selectors", f.key); err != nil {
			return nil, err
		}
		if err := checkExpression("list_page.selectors."+f.key, *f.dst); err != nil {
			return nil, err
		}
	}

	rule.Pagination.Type = PaginationNone
	rule.Pagination.MaxPages = 1
	if v, ok := obj["pagination"]; ok {
		pg, ok := v.(map[string]any)
		if !ok {
			return nil, errAt("list_page.pagination", "must be an object")
		}
		if err := checkKeys("list_page.pagination", pg, keySet("type", "selector", "max_pages")); err != nil {
			return nil, err
		}
		if v, ok := pg["type"]; ok {
			s, ok := v.(string)
			if !ok || (s != PaginationNone && s != PaginationSelector && s != PaginationToken) {
				return nil, errAt("list_page.pagination.type", `must be "none", "selector" or "token"`)
			}
			rule.Pagination.Type = s
		}
		if rule.Pagination.Selector, err = optionalString(pg, "list_page.pagination", "selector"); err != nil {
			return nil, err
		}
		if rule.Pagination.Type == PaginationSelector {
			if rule.Pagination.Selector == "" {
				return nil, errAt("list_page.pagination.selector", `is required when type is "selector"`)
			}
			if _, err := selector.Compile(rule.Pagination.Selector); err != nil {
				return nil, errAt("list_page.pagination.selector", err.Error())
			}
		}
		if v, ok := pg["max_pages"]; ok {
			n, err := asInt(v, "list_page.pagination.max_pages")
			if err != nil {
				return nil, err
			}
			if n < minMaxPages || n > maxMaxPages {
				return nil, errAt("list_page.pagination.max_pages", fmt.Sprintf("must be in [%d,%d]", minMaxPages, maxMaxPages))
			}
			rule.Pagination.MaxPages = n
		}
	}
	return rule, nil
}

func validateArticlePage(doc map[string]any) (*ArticlePageRule, error) {
	v, ok := doc["article_page"]
	if !ok {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errAt("article_page", "must be an object")
	}
	if err := checkKeys("article_page", obj, keySet("selectors", "cleanup", "normalize", "media")); err != nil {
		return nil, err
	}

	rule := &ArticlePageRule{}
	var err error

	if v, ok := obj["selectors"]; ok {
		sel, ok := v.(map[string]any)
		if !ok {
			return nil, errAt("article_page.selectors", "must be an object")
		}
		if err := checkKeys("article_page.selectors", sel, keySet(
			"title", "published_at", "content", "images", "canonical_url",
			"source_url", "summary", "category", "author", "source_name")); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			key string
			dst *string
		}{
			{"title", &rule.Selectors.Title},
			{"published_at", &rule.Selectors.PublishedAt},
			{"content", &rule.Selectors.Content},
			{"images", &rule.Selectors.Images},
			{"canonical_url", &rule.Selectors.CanonicalURL},
			{"source_url", &rule.Selectors.SourceURL},
			{"summary", &rule.Selectors.Summary},
			{"category", &rule.Selectors.Category},
			{"author", &rule.Selectors.Author},
			{"source_name", &rule.Selectors.SourceName},
		} {
			if *f.dst, err = optionalString(sel, "article_page.selectors", f.key); err != nil {
				return nil, err
			}
			if err := checkExpression("article_page.selectors."+f.key, *f.dst); err != nil {
				return nil, err
			}
		}
	}

	if v, ok := obj["cleanup"]; ok {
		cl, ok := v.(map[string]any)
		if !ok {
			return nil, errAt("article_page.cleanup", "must be an object")
		}
		if err := checkKeys("article_page.cleanup", cl, keySet("remove", "unwrap")); err != nil {
			return nil, err
		}
		if rule.Cleanup.Remove, err = optionalStringList(cl, "article_page.cleanup", "remove"); err != nil {
			return nil, err
		}
		if rule.Cleanup.Unwrap, err = optionalStringList(cl, "article_page.cleanup", "unwrap"); err != nil {
			return nil, err
		}
		for i, s := range rule.Cleanup.Remove {
			if _, err := selector.Compile(s); err != nil {
				return nil, errAt(fmt.Sprintf("article_page.cleanup.remove[%d]", i), err.Error())
			}
		}
		for i, s := range rule.Cleanup.Unwrap {
			if _, err := selector.Compile(s); err != nil {
				return nil, errAt(fmt.Sprintf("article_page.cleanup.unwrap[%d]", i), err.Error())
			}
		}
	}

	if v, ok := obj["normalize"]; ok {
		nm, ok := v.(map[string]any)
		if !ok {
			return nil, errAt("article_page.normalize", "must be an object")
		}
		// Exactly four optional booleans, nothing else.
		if err := checkKeys("article_page.normalize", nm, keySet(
			"html_to_md", "collapse_whitespace", "make_absolute_urls", "strip_tracking_params")); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			key string
			dst *bool
		}{
			{"html_to_md", &rule.Normalize.HTMLToMd},
			{"collapse_whitespace", &rule.Normalize.CollapseWhitespace},
			{"make_absolute_urls", &rule.Normalize.MakeAbsoluteURLs},
			{"strip_tracking_params", &rule.Normalize.StripTrackingParams},
		} {
			if v, ok := nm[f.key]; ok {
				b, ok := v.(bool)
				if !ok {
					return nil, errAt("article_page.normalize."+f.key, "must be a boolean")
				}
				*f.dst = b
			}
		}
	}

	if v, ok := obj["media"]; ok {
		md, ok := v.(map[string]any)
		if !ok {
			return nil, errAt("article_page.media", "must be an object")
		}
		if err := checkKeys("article_page.media", md, keySet("images")); err != nil {
			return nil, err
		}
		if v, ok := md["images"]; ok {
			img, ok := v.(map[string]any)
			if !ok {
				return nil, errAt("article_page.media.images", "must be an object")
			}
			if err := checkKeys("article_page.media.images", img, keySet("prefix", "min_width", "strip_tracking_params")); err != nil {
				return nil, err
			}
			if rule.Media.Images.Prefix, err = optionalString(img, "article_page.media.images", "prefix"); err != nil {
				return nil, err
			}
			if v, ok := img["min_width"]; ok {
				n, err := asInt(v, "article_page.media.images.min_width")
				if err != nil {
					return nil, err
				}
				if n < 0 {
					return nil, errAt("article_page.media.images.min_width", "must be >= 0")
				}
				rule.Media.Images.MinWidth = n
			}
			if v, ok := img["strip_tracking_params"]; ok {
				b, ok := v.(bool)
				if !ok {
					return nil, errAt("article_page.media.images.strip_tracking_params", "must be a boolean")
				}
				rule.Media.Images.StripTrackingParams = b
			}
		}
	}
	return rule, nil
}

func validateTests(doc map[string]any) ([]TestCase, error) {
	v, ok := doc["tests"]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, errAt("tests", "must be a list")
	}
	out := make([]TestCase, 0, len(list))
	for i, item := range list {
		path := fmt.Sprintf("tests[%d]", i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, errAt(path, "must be an object")
		}
		if err := checkKeys(path, obj, keySet("url", "expect")); err != nil {
			return nil, err
		}
		tc := TestCase{}
		var err error
		if tc.URL, err = requireString(obj, path, "url"); err != nil {
			return nil, err
		}
		if v, ok := obj["expect"]; ok {
			exp, ok := v.(map[string]any)
			if !ok {
				return nil, errAt(path+".expect", "must be an object")
			}
			if err := checkKeys(path+".expect", exp, keySet("title_contains", "content_min_len", "images_count_min")); err != nil {
				return nil, err
			}
			if tc.Expect.TitleContains, err = optionalString(exp, path+".expect", "title_contains"); err != nil {
				return nil, err
			}
			if v, ok := exp["content_min_len"]; ok {
				n, err := asInt(v, path+".expect.content_min_len")
				if err != nil {
					return nil, err
				}
				if n < 1 {
					return nil, errAt(path+".expect.content_min_len", "must be >= 1")
				}
				tc.Expect.ContentMinLen = n
			}
			if v, ok := exp["images_count_min"]; ok {
				n, err := asInt(v, path+".expect.images_count_min")
				if err != nil {
					return nil, err
				}
				if n < 0 {
					return nil, errAt(path+".expect.images_count_min", "must be >= 0")
				}
				tc.Expect.ImagesCountMin = n
			}
		}
		out = append(out, tc)
	}
	return out, nil
}

// --- untyped-tree helpers ---

func keySet(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// checkKeys rejects any key outside allowed, naming the key in the error.
// Keys are scanned in sorted order so rejection messages are deterministic.
func checkKeys(path string, obj map[string]any, allowed map[string]bool) error {
	var unknown []string
	for k := range obj {
		if !allowed[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	if path == "" {
		path = "(top level)"
	}
	return errAt(path, fmt.Sprintf("unexpected key %q", unknown[0]))
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func requireString(obj map[string]any, parent, key string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", errAt(joinPath(parent, key), "is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", errAt(joinPath(parent, key), "must be a string")
	}
	return s, nil
}

func optionalString(obj map[string]any, parent, key string) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errAt(joinPath(parent, key), "must be a string")
	}
	return s, nil
}

func requireObject(obj map[string]any, parent, key string) (map[string]any, error) {
	v, ok := obj[key]
	if !ok {
		return nil, errAt(joinPath(parent, key), "is required")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errAt(joinPath(parent, key), "must be an object")
	}
	return m, nil
}

func requireStringList(obj map[string]any, parent, key string) ([]string, error) {
	v, ok := obj[key]
	if !ok {
		return nil, errAt(joinPath(parent, key), "is required")
	}
	return asStringList(v, joinPath(parent, key))
}

func optionalStringList(obj map[string]any, parent, key string) ([]string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	return asStringList(v, joinPath(parent, key))
}

func asStringList(v any, path string) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, errAt(path, "must be a list of strings")
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, errAt(fmt.Sprintf("%s[%d]", path, i), "must be a string")
		}
		out = append(out, s)
	}
	return out, nil
}

// asInt accepts a JSON number only when it has no fractional part.
func asInt(v any, path string) (int, error) {
	n, ok := v.(float64)
	if !ok || n != math.Trunc(n) {
		return 0, errAt(path, "must be an integer")
	}
	return int(n), nil
}

// checkExpression verifies that a selector expression parses under the DSL.
// Empty means "not configured" and is always fine.
func checkExpression(path, expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := selector.Parse(expr); err != nil {
		return errAt(path, err.Error())
	}
	return nil
}
