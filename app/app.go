// Package app assembles the long-lived pieces every binary needs: the
// browser, the fetch engines, the extraction client, the pipeline and the
// deals service.
package app

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/deals"
	"github.com/use-agent/dealscout/engine"
	"github.com/use-agent/dealscout/llm"
	"github.com/use-agent/dealscout/pipeline"
	"github.com/use-agent/dealscout/scraper"
	"github.com/use-agent/dealscout/webhook"
)

// App owns the browser (if any) and the service built on top of it.
type App struct {
	Config  *config.Config
	Service *deals.Service
	Metrics *pipeline.Metrics

	// Scraper is nil when no configured site renders through the browser.
	Scraper *scraper.Scraper
}

// New builds an App from validated configuration. The browser is launched
// only when some site's fetch mode needs it.
func New(cfg *config.Config, metrics *pipeline.Metrics) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics}

	engines := pipeline.Engines{HTTP: engine.NewHTTPEngine(cfg.Scraper.HTTPTimeout)}
	if NeedsBrowser(cfg) {
		sc, err := scraper.NewScraper(cfg.Browser, cfg.Scraper)
		if err != nil {
			return nil, err
		}
		a.Scraper = sc
		engines.Browser = engine.NewRodEngine(sc.Render, false)
	}

	client := llm.NewClient(&http.Client{}, cfg.LLM)
	extractor := llm.NewExtractor(client, cfg.LLM, cfg.Extract)

	p, err := pipeline.New(cfg, engines, extractor, metrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Service = deals.NewService(cfg, p, webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret))
	return a, nil
}

// NeedsBrowser reports whether any site fetches in browser or auto mode.
func NeedsBrowser(cfg *config.Config) bool {
	for _, site := range cfg.Sites {
		if site.FetchMode != engine.ModeHTTP {
			return true
		}
	}
	return false
}

// Close shuts the browser down, if one was launched.
func (a *App) Close() {
	if a.Scraper != nil {
		a.Scraper.Close()
	}
}

// InitLogger configures slog based on the LogConfig. Logs go to stderr so
// stdout stays free for command output.
func InitLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
