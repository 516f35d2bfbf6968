package harness

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paperbird/harvest/fetch"
	"github.com/paperbird/harvest/horosafe"
	"github.com/paperbird/harvest/preset"
)

func fixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good":
			fmt.Fprint(w, `<article><h1>Harbor Expansion Approved</h1>
				<div class="body"><p>A long enough body of article text for the check.</p>
				<img src="/a.jpg"><img src="/b.jpg"></div></article>`)
		case "/short":
			fmt.Fprint(w, `<article><h1>Tiny</h1><div class="body">x</div></article>`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fixtureSnapshot(srv *httptest.Server, tests []preset.TestCase) *preset.Snapshot {
	host := strings.TrimPrefix(srv.URL, "http://")
	hostname, _, _ := strings.Cut(host, ":")
	return &preset.Snapshot{
		Name:     "demo",
		Version:  "1.0.0",
		Checksum: "test",
		Config: &preset.Preset{
			Name:          "demo",
			Version:       "1.0.0",
			SchemaVersion: 1,
			Match:         preset.Match{Domains: []string{hostname}},
			Fetch:         preset.FetchPolicy{TimeoutSec: 5},
			ArticlePage: &preset.ArticlePageRule{
				Selectors: preset.ArticleSelectors{
					Title:   "h1@text",
					Content: "div.body",
					Images:  "img@src*",
				},
			},
			Tests: tests,
		},
	}
}

func loopbackConfig() Config {
	return Config{Fetcher: fetch.NewHTTPFetcher(fetch.Config{ValidateURL: horosafe.AllowLoopback})}
}

func TestRun_AllPass(t *testing.T) {
	srv := fixtureServer(t)
	snap := fixtureSnapshot(srv, []preset.TestCase{{
		URL: srv.URL + "/good",
		Expect: preset.Expect{
			TitleContains:  "Harbor",
			ContentMinLen:  20,
			ImagesCountMin: 2,
		},
	}})

	rep, err := Run(context.Background(), snap, loopbackConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Passed() {
		t.Errorf("report should pass: %+v", rep.Results)
	}
	if rep.Results[0].Article == nil || rep.Results[0].Article.Title != "Harbor Expansion Approved" {
		t.Errorf("result article = %+v", rep.Results[0].Article)
	}
}

func TestRun_FailuresAreIndependent(t *testing.T) {
	// WHAT: One failing case and one fetch error do not stop the run; each
	// case gets its own result.
	srv := fixtureServer(t)
	snap := fixtureSnapshot(srv, []preset.TestCase{
		{URL: srv.URL + "/good", Expect: preset.Expect{TitleContains: "Harbor"}},
		{URL: srv.URL + "/short", Expect: preset.Expect{ContentMinLen: 100}},
		{URL: srv.URL + "/missing", Expect: preset.Expect{TitleContains: "x"}},
	})

	rep, err := Run(context.Background(), snap, loopbackConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(rep.Results))
	}
	if rep.Passed() {
		t.Error("report should fail")
	}
	if !rep.Results[0].Passed {
		t.Errorf("case 0 should pass: %+v", rep.Results[0])
	}
	if rep.Results[1].Passed || len(rep.Results[1].Failures) != 1 {
		t.Errorf("case 1 = %+v", rep.Results[1])
	}
	if rep.Results[2].Passed || rep.Results[2].Err == "" {
		t.Errorf("case 2 = %+v", rep.Results[2])
	}
	if !strings.Contains(rep.Results[1].Failures[0], "content length") {
		t.Errorf("failure message = %q", rep.Results[1].Failures[0])
	}
}

func TestRun_NoTestsPassesVacuously(t *testing.T) {
	srv := fixtureServer(t)
	rep, err := Run(context.Background(), fixtureSnapshot(srv, nil), loopbackConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Passed() || len(rep.Results) != 0 {
		t.Errorf("report = %+v", rep)
	}
}
