// Package harness replays a preset's declared test cases against the live
// site, extracting each URL exactly as a crawl would and checking the
// declared expectations. Callers typically gate preset activation on
// Report.Passed().
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/paperbird/harvest/crawl"
	"github.com/paperbird/harvest/fetch"
	"github.com/paperbird/harvest/preset"
	"github.com/paperbird/harvest/render"
)

// Result is the outcome of one test case. Err is set when the page could
// not be fetched or extracted; Failures lists unmet expectations. A result
// passes when both are empty.
type Result struct {
	URL      string         `json:"url"`
	Passed   bool           `json:"passed"`
	Failures []string       `json:"failures,omitempty"`
	Err      string         `json:"error,omitempty"`
	Article  *crawl.Article `json:"article,omitempty"`
}

// Report is the outcome of one harness run.
type Report struct {
	Preset     string    `json:"preset"`
	Version    string    `json:"version"`
	Checksum   string    `json:"checksum"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
}

// Passed reports whether every test case passed. A preset with no declared
// tests passes vacuously.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// Config configures a harness run. The zero value uses a plain HTTP
// fetcher and no renderer.
type Config struct {
	Fetcher  fetch.Fetcher
	Renderer render.Renderer
	Logger   *slog.Logger
}

// Run executes every test case of snap sequentially. Per-test fetch and
// extraction errors become failing results; Run itself errors only on an
// unusable snapshot or a cancelled context.
func Run(ctx context.Context, snap *preset.Snapshot, cfg Config) (*Report, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c, err := crawl.New(snap, crawl.Config{
		Fetcher:  cfg.Fetcher,
		Renderer: cfg.Renderer,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	rep := &Report{
		Preset:    snap.Name,
		Version:   snap.Version,
		Checksum:  snap.Checksum,
		StartedAt: time.Now(),
	}

	for _, tc := range snap.Config.Tests {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Results = append(rep.Results, runCase(ctx, c, tc))
	}

	rep.FinishedAt = time.Now()
	cfg.Logger.Info("harness: run finished",
		"preset", snap.Name, "version", snap.Version,
		"cases", len(rep.Results), "passed", rep.Passed())
	return rep, nil
}

func runCase(ctx context.Context, c *crawl.Crawler, tc preset.TestCase) Result {
	res := Result{URL: tc.URL}

	finalURL, rawHTML, err := c.FetchPage(ctx, tc.URL)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	art, _, err := c.Extractor().Extract(finalURL, rawHTML, crawl.ListItem{})
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Article = art

	if want := tc.Expect.TitleContains; want != "" && !strings.Contains(art.Title, want) {
		res.Failures = append(res.Failures,
			fmt.Sprintf("title %q does not contain %q", art.Title, want))
	}
	if want := tc.Expect.ContentMinLen; want > 0 {
		if got := utf8.RuneCountInString(art.Content); got < want {
			res.Failures = append(res.Failures,
				fmt.Sprintf("content length %d below minimum %d", got, want))
		}
	}
	if want := tc.Expect.ImagesCountMin; want > 0 && len(art.Images) < want {
		res.Failures = append(res.Failures,
			fmt.Sprintf("image count %d below minimum %d", len(art.Images), want))
	}

	res.Passed = len(res.Failures) == 0
	return res
}
