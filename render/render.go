// Package render fetches pages through a headless Chrome so that
// script-driven sites yield their final DOM instead of an empty shell.
// It is used only for presets that opt in via their render policy; plain
// HTTP fetching stays the default.
//
// Usage:
//
//	r := render.NewBrowser(render.Config{})
//	defer r.Close()
//	html, err := r.Render(ctx, url, p.Render)
package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/paperbird/harvest/preset"
)

// Error wraps a rendering failure. The crawl engine treats it like a
// transport failure for the page: recorded and skipped, never fatal to the
// whole invocation.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("render %s: %v", e.URL, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Renderer produces the post-JavaScript HTML of a page.
type Renderer interface {
	Render(ctx context.Context, rawURL string, policy *preset.RenderPolicy) (string, error)
}

// Config configures the headless browser.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome. Empty = launch
	// a local Chrome via launcher.
	RemoteURL string

	// DefaultTimeout bounds a render when the policy does not set one.
	// Default: 30s.
	DefaultTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser is a lazily-started headless Chrome shared across renders.
// Safe for concurrent use; each Render opens its own stealth tab.
type Browser struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewBrowser builds a Browser. Chrome is launched on first Render.
func NewBrowser(cfg Config) *Browser {
	cfg.defaults()
	return &Browser{cfg: cfg}
}

// Render navigates to rawURL in a fresh stealth tab, waits for load (and
// for the policy's wait_for selector when set), and returns the serialized
// DOM. The tab is closed before returning.
func (b *Browser) Render(ctx context.Context, rawURL string, policy *preset.RenderPolicy) (string, error) {
	browser, err := b.connect()
	if err != nil {
		return "", &Error{URL: rawURL, Err: err}
	}

	timeout := b.cfg.DefaultTimeout
	if policy != nil && policy.TimeoutSec > 0 {
		timeout = time.Duration(policy.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := stealth.Page(browser)
	if err != nil {
		return "", &Error{URL: rawURL, Err: fmt.Errorf("create tab: %w", err)}
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.Navigate(rawURL); err != nil {
		return "", &Error{URL: rawURL, Err: fmt.Errorf("navigate: %w", err)}
	}
	if err := page.WaitLoad(); err != nil {
		// Load-event timeouts are common on ad-heavy pages; the DOM is
		// usually usable anyway.
		b.cfg.Logger.Warn("render: wait load", "url", rawURL, "error", err)
	}

	if policy != nil && policy.WaitFor != "" {
		if _, err := page.Element(policy.WaitFor); err != nil {
			return "", &Error{URL: rawURL, Err: fmt.Errorf("wait for %q: %w", policy.WaitFor, err)}
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", &Error{URL: rawURL, Err: fmt.Errorf("serialize DOM: %w", err)}
	}
	return html, nil
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("render: browser is closed")
	}
	if b.browser != nil {
		return b.browser, nil
	}

	wsURL := b.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("render: launch chrome: %w", err)
		}
		b.lnch = l
		wsURL = u
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("render: connect: %w", err)
	}
	b.browser = browser
	b.cfg.Logger.Info("render: browser started", "remote", b.cfg.RemoteURL != "")
	return browser, nil
}

// Close shuts the browser down. Subsequent Render calls fail.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}
