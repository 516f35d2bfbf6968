package selector

import (
	"errors"
	"testing"
)

const page = `<html><body>
<article>
  <h1> Harbor Expansion </h1>
  <a class="more" href="/a/1">read</a>
  <div class="body"><p>first</p><p>second</p></div>
  <img src="/i/1.jpg"><img src="/i/2.jpg">
  <time datetime="2024-05-12">May 12</time>
</article>
</body></html>`

func TestParse_Forms(t *testing.T) {
	cases := []struct {
		expr                string
		sel, attr           string
		multiple, optional  bool
	}{
		{"div.body", "div.body", "", false, false},
		{"h1@text", "h1", "text", false, false},
		{"a@href", "a", "href", false, false},
		{"img@src*", "img", "src", true, false},
		{"time@datetime?", "time", "datetime", false, true},
		{"img@src*?", "img", "src", true, true},
		{"@href", "", "href", false, false},
	}
	for _, tc := range cases {
		e, err := Parse(tc.expr)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.expr, err)
			continue
		}
		if e.Selector != tc.sel || e.Attribute != tc.attr || e.Multiple != tc.multiple || e.Optional != tc.optional {
			t.Errorf("Parse(%q) = %+v", tc.expr, e)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, expr := range []string{"", "   ", "li[unclosed", "@"} {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q) should fail", expr)
		}
	}
}

func TestEval(t *testing.T) {
	doc, err := ParseDocument(page)
	if err != nil {
		t.Fatal(err)
	}
	root := doc.Selection

	// Text extraction trims.
	v, err := MustParse("h1@text").Eval(root)
	if err != nil || v.First() != "Harbor Expansion" {
		t.Errorf("h1@text = %q, %v", v.First(), err)
	}

	// Attribute extraction.
	v, _ = MustParse("a.more@href").Eval(root)
	if v.First() != "/a/1" {
		t.Errorf("a.more@href = %q", v.First())
	}

	// No attribute yields inner HTML.
	v, _ = MustParse("div.body").Eval(root)
	if v.First() != "<p>first</p><p>second</p>" {
		t.Errorf("div.body = %q", v.First())
	}

	// Multi collects document order.
	v, _ = MustParse("img@src*").Eval(root)
	if len(v.Values) != 2 || v.Values[0] != "/i/1.jpg" || v.Values[1] != "/i/2.jpg" {
		t.Errorf("img@src* = %v", v.Values)
	}
	if v.Join("|") != "/i/1.jpg|/i/2.jpg" {
		t.Errorf("Join = %q", v.Join("|"))
	}
}

func TestEval_NoMatch(t *testing.T) {
	doc, _ := ParseDocument(page)
	root := doc.Selection

	// Required expression: sentinel error.
	if _, err := MustParse("div.missing@text").Eval(root); !errors.Is(err, ErrNoMatch) {
		t.Errorf("want ErrNoMatch, got %v", err)
	}

	// Optional expression: empty value, no error.
	v, err := MustParse("div.missing@text?").Eval(root)
	if err != nil {
		t.Errorf("optional no-match errored: %v", err)
	}
	if v.First() != "" || len(v.Values) != 0 {
		t.Errorf("optional no-match = %+v", v)
	}
}

func TestEval_AttributeOnCurrentNode(t *testing.T) {
	// WHAT: An expression with no CSS part reads from the node it is
	// evaluated against, which is how list items resolve their own link.
	doc, _ := ParseDocument(`<a href="/only">x</a>`)
	link := doc.Find("a")
	v, err := MustParse("@href").Eval(link)
	if err != nil || v.First() != "/only" {
		t.Errorf("@href on node = %q, %v", v.First(), err)
	}
}

func TestCompile_CaughtAtValidationTime(t *testing.T) {
	if _, err := Compile("li[unclosed"); err == nil {
		t.Error("invalid CSS must not compile")
	}
	if _, err := Compile("li.item > a"); err != nil {
		t.Errorf("valid CSS rejected: %v", err)
	}
}
