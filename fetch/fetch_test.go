package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paperbird/harvest/horosafe"
	"github.com/paperbird/harvest/preset"
)

func loopbackFetcher() *HTTPFetcher {
	return NewHTTPFetcher(Config{ValidateURL: horosafe.AllowLoopback})
}

func TestHTTPFetcher_OK(t *testing.T) {
	// WHAT: A 200 response yields the body, status, and final URL.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != DefaultUserAgent {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	res, err := loopbackFetcher().Fetch(context.Background(), srv.URL+"/a", &preset.FetchPolicy{TimeoutSec: 5})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != 200 || string(res.Body) != "<html>ok</html>" {
		t.Errorf("got status %d body %q", res.StatusCode, res.Body)
	}
	if res.FinalURL != srv.URL+"/a" {
		t.Errorf("FinalURL = %q", res.FinalURL)
	}
}

func TestHTTPFetcher_PolicyHeaders(t *testing.T) {
	// WHAT: Policy headers are sent and may override the default User-Agent.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Key"); got != "v1" {
			t.Errorf("X-Key = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "custom/1" {
			t.Errorf("User-Agent = %q", got)
		}
	}))
	defer srv.Close()

	_, err := loopbackFetcher().Fetch(context.Background(), srv.URL, &preset.FetchPolicy{
		TimeoutSec: 5,
		Headers:    map[string]string{"X-Key": "v1", "User-Agent": "custom/1"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}

func TestHTTPFetcher_Status404(t *testing.T) {
	// WHAT: Non-2xx becomes a TransportError carrying the status code.
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := loopbackFetcher().Fetch(context.Background(), srv.URL, &preset.FetchPolicy{TimeoutSec: 5})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want *TransportError, got %v", err)
	}
	if te.StatusCode != 404 {
		t.Errorf("StatusCode = %d", te.StatusCode)
	}
}

func TestHTTPFetcher_Redirect(t *testing.T) {
	// WHAT: Redirects are followed and FinalURL reflects the landing page.
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		w.Write([]byte("landed"))
	}))
	defer srv.Close()

	res, err := loopbackFetcher().Fetch(context.Background(), srv.URL+"/old", &preset.FetchPolicy{TimeoutSec: 5})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.FinalURL != srv.URL+"/new" {
		t.Errorf("FinalURL = %q, want %q", res.FinalURL, srv.URL+"/new")
	}
}

func TestHTTPFetcher_SSRFGuard(t *testing.T) {
	// WHAT: The default guard rejects loopback targets before any dial.
	f := NewHTTPFetcher(Config{})
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/x", &preset.FetchPolicy{TimeoutSec: 5})
	if !errors.Is(err, horosafe.ErrSSRF) {
		t.Errorf("want ErrSSRF, got %v", err)
	}
}

func TestHTTPFetcher_BodyCap(t *testing.T) {
	// WHAT: A body over the cap fails with ErrResponseTooLarge.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Config{ValidateURL: horosafe.AllowLoopback, MaxBody: 1024})
	_, err := f.Fetch(context.Background(), srv.URL, &preset.FetchPolicy{TimeoutSec: 5})
	if !errors.Is(err, horosafe.ErrResponseTooLarge) {
		t.Errorf("want ErrResponseTooLarge, got %v", err)
	}
}

func TestDomainLimiter_Paces(t *testing.T) {
	// WHAT: At 10 rps, three requests to one host take at least ~200ms.
	l := NewDomainLimiter(10)
	start := time.Now()
	for range 3 {
		if err := l.Wait(context.Background(), "https://example.com/p"); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("three waits took %v, want >= 150ms", elapsed)
	}
}

func TestDomainLimiter_ZeroDisables(t *testing.T) {
	l := NewDomainLimiter(0)
	start := time.Now()
	for range 100 {
		l.Wait(context.Background(), "https://example.com/")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("disabled limiter blocked for %v", elapsed)
	}
}

func TestRobotsCache_RespectAndIgnore(t *testing.T) {
	// WHAT: "respect" blocks disallowed paths; "ignore" never blocks.
	var robotsHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits++
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cache := NewRobotsCache(loopbackFetcher(), "", nil)
	respect := &preset.FetchPolicy{TimeoutSec: 5, RobotsPolicy: preset.RobotsRespect}

	if err := cache.Check(context.Background(), srv.URL+"/public/a", respect); err != nil {
		t.Errorf("public path blocked: %v", err)
	}
	if err := cache.Check(context.Background(), srv.URL+"/private/a", respect); !errors.Is(err, ErrRobotsDisallowed) {
		t.Errorf("want ErrRobotsDisallowed, got %v", err)
	}

	ignore := &preset.FetchPolicy{TimeoutSec: 5, RobotsPolicy: preset.RobotsIgnore}
	if err := cache.Check(context.Background(), srv.URL+"/private/a", ignore); err != nil {
		t.Errorf("ignore policy blocked: %v", err)
	}

	if robotsHits != 1 {
		t.Errorf("robots.txt fetched %d times, want 1 (cached)", robotsHits)
	}
}

func TestRobotsCache_UnreachableAllowsAll(t *testing.T) {
	// WHAT: A 404 robots.txt allows everything.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cache := NewRobotsCache(loopbackFetcher(), "", nil)
	respect := &preset.FetchPolicy{TimeoutSec: 5, RobotsPolicy: preset.RobotsRespect}
	if err := cache.Check(context.Background(), srv.URL+"/anything", respect); err != nil {
		t.Errorf("missing robots.txt should allow: %v", err)
	}
}

func TestRobotsCache_FetchSharesLimiter(t *testing.T) {
	// WHAT: The robots.txt retrieval draws from the same per-domain budget
	// as page fetches, so a prior page fetch delays the robots lookup.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow:\n"))
	}))
	defer srv.Close()

	l := NewDomainLimiter(10)
	cache := NewRobotsCache(loopbackFetcher(), "", l)
	respect := &preset.FetchPolicy{TimeoutSec: 5, RobotsPolicy: preset.RobotsRespect}

	// Drain the host's burst token as a page fetch would.
	if err := l.Wait(context.Background(), srv.URL+"/page"); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	start := time.Now()
	if err := cache.Check(context.Background(), srv.URL+"/page", respect); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("robots fetch waited %v, want >= 50ms behind the limiter", elapsed)
	}
}
