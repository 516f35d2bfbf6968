// Command harvest is the preset registry and crawl server.
//
// Usage:
//
//	harvest                       # serve HTTP on :8080 with harvest.db
//	harvest -config harvest.yaml  # take settings from a YAML file
//	MCP_TRANSPORT=stdio harvest   # additionally speak MCP over stdio
//
// Environment variables (PORT, DB_PATH, MCP_TRANSPORT, RENDER_REMOTE_URL,
// CONCURRENCY, LOG_LEVEL) provide defaults; the config file, then flags,
// override them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/paperbird/harvest/crawl"
	"github.com/paperbird/harvest/fetch"
	"github.com/paperbird/harvest/harness"
	"github.com/paperbird/harvest/registry"
	"github.com/paperbird/harvest/render"
)

type fileConfig struct {
	Port         string       `yaml:"port"`
	DBPath       string       `yaml:"db_path"`
	LogLevel     string       `yaml:"log_level"`
	MCPTransport string       `yaml:"mcp_transport"`
	Concurrency  int          `yaml:"concurrency"`
	Render       renderConfig `yaml:"render"`
}

type renderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Remote  string `yaml:"remote"`
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{
		Port:         env("PORT", "8080"),
		DBPath:       env("DB_PATH", "harvest.db"),
		LogLevel:     env("LOG_LEVEL", "info"),
		MCPTransport: env("MCP_TRANSPORT", ""),
		Concurrency:  envInt("CONCURRENCY", 4),
		Render: renderConfig{
			Enabled: env("RENDER_REMOTE_URL", "") != "",
			Remote:  env("RENDER_REMOTE_URL", ""),
		},
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to harvest.yaml config file")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("harvest: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *fileConfig) error {
	reg, err := registry.New(&registry.Config{DBPath: cfg.DBPath}, logger)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.Close()

	fetcher := fetch.NewHTTPFetcher(fetch.Config{})

	var renderer render.Renderer
	if cfg.Render.Enabled {
		browser := render.NewBrowser(render.Config{
			RemoteURL: cfg.Render.Remote,
			Logger:    logger,
		})
		defer browser.Close()
		renderer = browser
	}

	// Optional MCP over stdio.
	if cfg.MCPTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "harvest",
			Version: "1.0.0",
		}, nil)
		reg.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("mcp stdio", "error", err)
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	reg.RegisterRoutes(r)

	// Crawl the active version of a preset and return the run report.
	r.Post("/api/v1/presets/{name}/crawl", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		snap, err := reg.Snapshot(req.Context(), name)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		c, err := crawl.New(snap, crawl.Config{
			Fetcher:     fetcher,
			Renderer:    renderer,
			Concurrency: cfg.Concurrency,
			Logger:      logger,
		})
		if err != nil {
			writeError(w, 500, err)
			return
		}
		rep, err := c.Run(req.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, rep)
	})

	// Run a stored version's test cases against the live sites. The version
	// does not have to be active, so candidates can be checked before
	// activation.
	r.Post("/api/v1/presets/{name}/{version}/test", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		version := chi.URLParam(req, "version")
		snap, err := reg.SnapshotVersion(req.Context(), name, version)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		rep, err := harness.Run(req.Context(), snap, harness.Config{
			Fetcher:  fetcher,
			Renderer: renderer,
			Logger:   logger,
		})
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, rep)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func statusOf(err error) int {
	if errors.Is(err, registry.ErrNotFound) {
		return 404
	}
	return 500
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
