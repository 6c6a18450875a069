package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
)

// Config holds all application configuration. It is built once at startup
// and passed explicitly; nothing mutates it afterwards.
type Config struct {
	Sites      map[string]SiteConfig
	Categories []string
	Crawl      CrawlConfig
	Extract    ExtractConfig
	LLM        LLMConfig
	Browser    BrowserConfig
	Scraper    ScraperConfig
	Output     OutputConfig
	Server     ServerConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Webhook    WebhookConfig
	Metrics    MetricsConfig
	Log        LogConfig
}

// SiteConfig describes one e-commerce site. Selector values are per-site
// configuration, not pipeline logic.
type SiteConfig struct {
	// BaseURL is the search URL prefix; the search term is appended to it.
	BaseURL string `yaml:"base_url"`

	// ProductSelector matches one listing block on a results page.
	ProductSelector string `yaml:"product_selector"`

	// PaginationSelector matches the "next page" link.
	PaginationSelector string `yaml:"pagination_selector"`

	// FetchMode is "browser" (default), "http", or "auto".
	FetchMode string `yaml:"fetch_mode"`

	// Currency is the symbol used in textual summaries. default: "$"
	Currency string `yaml:"currency"`

	// Stealth injects anti-bot-detection evasions before navigation.
	Stealth bool `yaml:"stealth"`
}

// SearchURL builds the results URL for a search term.
func (s SiteConfig) SearchURL(term string) string {
	return s.BaseURL + strings.ReplaceAll(strings.TrimSpace(term), " ", "+")
}

// CrawlConfig controls pacing and pagination.
type CrawlConfig struct {
	// RequestDelay is the minimum interval between visits to the same site.
	RequestDelay time.Duration // default: 2s

	// MaxPagesPerSearch caps how many result pages one search follows.
	MaxPagesPerSearch int // default: 3

	// Concurrency is how many (site, category) units run at once.
	Concurrency int // default: 1
}

// ExtractConfig holds the extraction policy limits.
type ExtractConfig struct {
	// MaxBlocks is how many listing blocks are kept per page.
	MaxBlocks int // default: 5

	// MaxFragmentChars caps the fragment handed to the extraction service.
	MaxFragmentChars int // default: 20000

	// MaxItems is the per-fragment item cap stated in the prompt.
	MaxItems int // default: 5

	// FragmentFormat is "html" (default) or "markdown".
	FragmentFormat string

	// StripSelectors are removed from every block before extraction.
	// default: ["script", "style", "noscript", "svg"]
	StripSelectors []string

	// SummaryTopN is how many deals the textual summary lists.
	SummaryTopN int // default: 10
}

// LLMConfig controls the OpenAI-compatible extraction service.
type LLMConfig struct {
	APIKey  string
	Model   string        // default: "gpt-4o-mini"
	BaseURL string        // default: "https://api.openai.com/v1"
	Timeout time.Duration // default: 60s

	// JSONMode requests response_format=json_object. Some providers reject it.
	JSONMode bool // default: true
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 4

	// DefaultProxy is the proxy URL for all browser traffic.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// ScraperConfig controls page rendering.
type ScraperConfig struct {
	// NavigationTimeout bounds page.Navigate.
	NavigationTimeout time.Duration // default: 90s

	// ContentTimeout bounds waiting for the DOM to settle.
	ContentTimeout time.Duration // default: 90s

	// SettleDelay is extra time given to client-side scripts after load.
	SettleDelay time.Duration // default: 5s

	// HTTPTimeout bounds the plain HTTP engine.
	HTTPTimeout time.Duration // default: 15s

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to well-known ad and tracking hosts.
	BlockAds bool // default: true
}

// OutputConfig controls exports.
type OutputConfig struct {
	Dir    string // default: "output"
	Format string // "csv", "json", or "dual"; default: "csv"

	// Dedup is the duplicate policy: "none" (default), "url", "similar".
	Dedup string
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 0.2

	// Burst is the maximum burst size per API key.
	Burst int // default: 2
}

// WebhookConfig enables run.completed notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string // empty disables it
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// DefaultSites is the built-in site registry.
func DefaultSites() map[string]SiteConfig {
	return map[string]SiteConfig{
		"jumia": {
			BaseURL:            "https://www.jumia.co.ke/catalog/?q=",
			ProductSelector:    "article.prd",
			PaginationSelector: "a.pg-next",
			FetchMode:          "browser",
			Currency:           "KSh ",
		},
	}
}

// DefaultCategories is the built-in category list.
func DefaultCategories() []string {
	return []string{"electronics", "phones", "laptops", "home appliances", "fashion"}
}

// Load reads configuration from environment variables with sane defaults.
// DEALSCOUT_SITES_FILE, if set, replaces the built-in site registry.
func Load() (*Config, error) {
	sites := DefaultSites()
	if path := os.Getenv("DEALSCOUT_SITES_FILE"); path != "" {
		loaded, err := LoadSites(path)
		if err != nil {
			return nil, err
		}
		sites = loaded
	}

	cfg := &Config{
		Sites:      sites,
		Categories: envSliceOr("DEALSCOUT_CATEGORIES", DefaultCategories()),
		Crawl: CrawlConfig{
			RequestDelay:      envDurationOr("DEALSCOUT_REQUEST_DELAY", 2*time.Second),
			MaxPagesPerSearch: envIntOr("DEALSCOUT_MAX_PAGES_PER_SEARCH", 3),
			Concurrency:       envIntOr("DEALSCOUT_CONCURRENCY", 1),
		},
		Extract: ExtractConfig{
			MaxBlocks:        envIntOr("DEALSCOUT_MAX_BLOCKS", 5),
			MaxFragmentChars: envIntOr("DEALSCOUT_MAX_FRAGMENT_CHARS", 20000),
			MaxItems:         envIntOr("DEALSCOUT_MAX_ITEMS", 5),
			FragmentFormat:   envOr("DEALSCOUT_FRAGMENT_FORMAT", "html"),
			StripSelectors:   envSliceOr("DEALSCOUT_STRIP_SELECTORS", []string{"script", "style", "noscript", "svg"}),
			SummaryTopN:      envIntOr("DEALSCOUT_SUMMARY_TOP_N", 10),
		},
		LLM: LLMConfig{
			APIKey:   os.Getenv("DEALSCOUT_LLM_API_KEY"),
			Model:    envOr("DEALSCOUT_LLM_MODEL", "gpt-4o-mini"),
			BaseURL:  envOr("DEALSCOUT_LLM_BASE_URL", "https://api.openai.com/v1"),
			Timeout:  envDurationOr("DEALSCOUT_LLM_TIMEOUT", 60*time.Second),
			JSONMode: envBoolOr("DEALSCOUT_LLM_JSON_MODE", true),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("DEALSCOUT_HEADLESS", true),
			MaxPages:     envIntOr("DEALSCOUT_MAX_TABS", 4),
			DefaultProxy: os.Getenv("DEALSCOUT_PROXY"),
			NoSandbox:    envBoolOr("DEALSCOUT_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("DEALSCOUT_BROWSER_BIN"),
		},
		Scraper: ScraperConfig{
			NavigationTimeout: envDurationOr("DEALSCOUT_NAV_TIMEOUT", 90*time.Second),
			ContentTimeout:    envDurationOr("DEALSCOUT_CONTENT_TIMEOUT", 90*time.Second),
			SettleDelay:       envDurationOr("DEALSCOUT_SETTLE_DELAY", 5*time.Second),
			HTTPTimeout:       envDurationOr("DEALSCOUT_HTTP_TIMEOUT", 15*time.Second),
			BlockedResourceTypes: envSliceOr("DEALSCOUT_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("DEALSCOUT_BLOCK_ADS", true),
		},
		Output: OutputConfig{
			Dir:    envOr("DEALSCOUT_OUTPUT_DIR", "output"),
			Format: envOr("DEALSCOUT_OUTPUT_FORMAT", "csv"),
			Dedup:  envOr("DEALSCOUT_DEDUP", "none"),
		},
		Server: ServerConfig{
			Host: envOr("DEALSCOUT_HOST", "0.0.0.0"),
			Port: envIntOr("DEALSCOUT_PORT", 8080),
			Mode: envOr("DEALSCOUT_MODE", "release"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("DEALSCOUT_AUTH_ENABLED", true),
			APIKeys: envSliceOr("DEALSCOUT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("DEALSCOUT_RATE_RPS", 0.2),
			Burst:             envIntOr("DEALSCOUT_RATE_BURST", 2),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("DEALSCOUT_WEBHOOK_URL"),
			Secret: os.Getenv("DEALSCOUT_WEBHOOK_SECRET"),
		},
		Metrics: MetricsConfig{
			Addr: os.Getenv("DEALSCOUT_METRICS_ADDR"),
		},
		Log: LogConfig{
			Level:  envOr("DEALSCOUT_LOG_LEVEL", "info"),
			Format: envOr("DEALSCOUT_LOG_FORMAT", "json"),
		},
	}
	cfg.applySiteDefaults()
	return cfg, nil
}

func (c *Config) applySiteDefaults() {
	for name, site := range c.Sites {
		if site.FetchMode == "" {
			site.FetchMode = "browser"
		}
		if site.Currency == "" {
			site.Currency = "$"
		}
		c.Sites[name] = site
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if len(c.Sites) == 0 {
		return fmt.Errorf("site registry cannot be empty")
	}
	for name, site := range c.Sites {
		if err := site.validate(); err != nil {
			return fmt.Errorf("site %q: %w", name, err)
		}
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("category list cannot be empty")
	}
	if c.Crawl.RequestDelay < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.Crawl.MaxPagesPerSearch <= 0 {
		return fmt.Errorf("max pages per search must be positive")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.Extract.MaxBlocks <= 0 || c.Extract.MaxFragmentChars <= 0 || c.Extract.MaxItems <= 0 {
		return fmt.Errorf("extraction limits must be positive")
	}
	if c.Extract.SummaryTopN <= 0 {
		return fmt.Errorf("summary size must be positive")
	}
	if c.Extract.FragmentFormat != "html" && c.Extract.FragmentFormat != "markdown" {
		return fmt.Errorf("fragment format must be html or markdown")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive")
	}
	if c.Scraper.NavigationTimeout <= 0 || c.Scraper.ContentTimeout <= 0 {
		return fmt.Errorf("render timeouts must be positive")
	}
	if c.Scraper.SettleDelay < 0 {
		return fmt.Errorf("settle delay cannot be negative")
	}
	switch c.Output.Format {
	case "csv", "json", "dual":
	default:
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	switch c.Output.Dedup {
	case "none", "url", "similar":
	default:
		return fmt.Errorf("dedup policy must be none, url, or similar")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	return nil
}

func (s SiteConfig) validate() error {
	parsed, err := url.Parse(s.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if s.ProductSelector == "" {
		return fmt.Errorf("product selector cannot be empty")
	}
	if _, err := cascadia.Parse(s.ProductSelector); err != nil {
		return fmt.Errorf("product selector: %w", err)
	}
	if s.PaginationSelector != "" {
		if _, err := cascadia.Parse(s.PaginationSelector); err != nil {
			return fmt.Errorf("pagination selector: %w", err)
		}
	}
	switch s.FetchMode {
	case "", "browser", "http", "auto":
	default:
		return fmt.Errorf("fetch mode must be browser, http, or auto")
	}
	return nil
}

// SiteNames returns the registry keys in sorted order.
func (c *Config) SiteNames() []string {
	names := make([]string, 0, len(c.Sites))
	for name := range c.Sites {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Site looks up a registered site.
func (c *Config) Site(name string) (SiteConfig, bool) {
	s, ok := c.Sites[name]
	return s, ok
}

// HasCategory reports whether category is in the configured list.
func (c *Config) HasCategory(category string) bool {
	return slices.Contains(c.Categories, category)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
