// Package selector implements the selector-expression DSL used by presets.
//
// An expression is a CSS selector with an optional attribute suffix and
// trailing flags:
//
//	"div.body"          inner HTML of the first matching node
//	"h1@text"           trimmed text of the first matching node
//	"a@href"            attribute value of the first matching node
//	"div.body img@src*" attribute values of ALL matching nodes
//	"time@datetime?"    optional — no match yields no value, not an error
//	"@href"             no selector part: acts on the current node
//
// Expressions are compiled once (the CSS part through cascadia) and then
// evaluated against goquery selections, so an invalid selector is caught at
// preset validation time instead of panicking mid-crawl.
package selector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// ErrNoMatch is returned by Eval when a non-optional expression matches
// nothing.
var ErrNoMatch = errors.New("selector: expression matched nothing")

// Expression is a parsed, compiled selector expression.
type Expression struct {
	Selector  string // CSS part; empty acts on the current node
	Attribute string // "" = inner HTML, "text" = text content, else attribute
	Multiple  bool   // trailing *
	Optional  bool   // trailing ?

	matcher cascadia.Selector
}

// Value is the result of evaluating an expression: one string per matched
// node in document order (a single string unless the expression is multi).
type Value struct {
	Values   []string
	Multiple bool
}

// First returns the first value, or "" when there is none.
func (v *Value) First() string {
	if v == nil || len(v.Values) == 0 {
		return ""
	}
	return v.Values[0]
}

// Join concatenates all non-empty values with sep.
func (v *Value) Join(sep string) string {
	if v == nil {
		return ""
	}
	parts := make([]string, 0, len(v.Values))
	for _, s := range v.Values {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

// Compile compiles a plain CSS selector (no DSL suffixes). The returned
// value satisfies goquery.Matcher.
func Compile(css string) (cascadia.Selector, error) {
	css = strings.TrimSpace(css)
	if css == "" {
		return nil, errors.New("selector: empty selector")
	}
	m, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("selector: %q: %w", css, err)
	}
	return m, nil
}

// Parse parses and compiles a selector expression.
func Parse(expr string) (*Expression, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return nil, errors.New("selector: empty expression")
	}

	e := &Expression{}
	if strings.HasSuffix(raw, "?") {
		e.Optional = true
		raw = strings.TrimSuffix(raw, "?")
	}
	if strings.HasSuffix(raw, "*") {
		e.Multiple = true
		raw = strings.TrimSuffix(raw, "*")
	}

	if idx := strings.Index(raw, "@"); idx >= 0 {
		e.Selector = strings.TrimSpace(raw[:idx])
		e.Attribute = strings.TrimSpace(raw[idx+1:])
	} else {
		e.Selector = strings.TrimSpace(raw)
	}

	if e.Selector == "" && e.Attribute == "" {
		return nil, fmt.Errorf("selector: %q has neither selector nor attribute", expr)
	}
	if e.Selector != "" {
		m, err := cascadia.Compile(e.Selector)
		if err != nil {
			return nil, fmt.Errorf("selector: %q: %w", e.Selector, err)
		}
		e.matcher = m
	}
	return e, nil
}

// MustParse is Parse for expressions known valid (tests, constants).
func MustParse(expr string) *Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// Nodes returns the selection the expression applies to: the nodes matched
// by the CSS part, or root itself when the expression has no selector.
func (e *Expression) Nodes(root *goquery.Selection) *goquery.Selection {
	if e.matcher == nil {
		return root
	}
	return root.FindMatcher(e.matcher)
}

// Eval evaluates the expression against root. A non-optional expression
// that matches nothing returns ErrNoMatch; an optional one returns an empty
// Value.
func (e *Expression) Eval(root *goquery.Selection) (*Value, error) {
	nodes := e.Nodes(root)
	if nodes.Length() == 0 {
		if e.Optional {
			return &Value{Multiple: e.Multiple}, nil
		}
		return nil, ErrNoMatch
	}

	v := &Value{Multiple: e.Multiple}
	if !e.Multiple {
		v.Values = []string{e.value(nodes.First())}
		return v, nil
	}
	nodes.Each(func(_ int, s *goquery.Selection) {
		v.Values = append(v.Values, e.value(s))
	})
	return v, nil
}

// value extracts one node's value according to the attribute suffix.
func (e *Expression) value(s *goquery.Selection) string {
	switch e.Attribute {
	case "":
		h, err := s.Html()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(h)
	case "text":
		return strings.TrimSpace(s.Text())
	default:
		return strings.TrimSpace(s.AttrOr(e.Attribute, ""))
	}
}

// ParseDocument parses an HTML document for selector evaluation.
func ParseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("selector: parse document: %w", err)
	}
	return doc, nil
}
