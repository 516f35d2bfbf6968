package preset

import "testing"

func TestMatch_AllowsURL(t *testing.T) {
	m := &Match{
		Domains: []string{"tagblatt.example"},
		Include: []string{"/artikel/"},
		Exclude: []string{"/tag/", "?print=1"},
	}

	cases := map[string]bool{
		"https://tagblatt.example/artikel/42":        true,
		"https://www.tagblatt.example/artikel/42":    true,  // subdomain
		"https://other.example/artikel/42":           false, // foreign host
		"https://tagblatt.example/video/42":          false, // include miss
		"https://tagblatt.example/artikel/tag/x":     false, // exclude wins over include
		"https://tagblatt.example/artikel/42?print=1": false,
		"https://eviltagblatt.example/artikel/42":    false, // suffix is not subdomain
	}
	for raw, want := range cases {
		if got := m.AllowsURL(raw); got != want {
			t.Errorf("AllowsURL(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestMatch_NoIncludeMeansAll(t *testing.T) {
	m := &Match{Domains: []string{"a.com"}}
	if !m.AllowsURL("https://a.com/anything") {
		t.Error("domain-only match should allow all paths")
	}
}
