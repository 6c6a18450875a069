// Package pipeline runs units of work: fetch a results page, narrow it to
// listing blocks, extract raw items, validate them, and follow pagination.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/use-agent/dealscout/cleaner"
	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/dedup"
	"github.com/use-agent/dealscout/engine"
	"github.com/use-agent/dealscout/llm"
	"github.com/use-agent/dealscout/models"
	"github.com/use-agent/dealscout/normalizer"
)

// Pipeline stages.
const (
	StageFetch    = "fetch"
	StageFilter   = "prefilter"
	StageExtract  = "extract"
	StageValidate = "validate"
)

// Engines are the fetchers sites can be configured to use. Browser may be
// nil when every site uses fetch mode "http".
type Engines struct {
	HTTP    engine.Engine
	Browser engine.Engine
}

// Pipeline turns units into validated batches. It holds only read-only
// configuration and may run several units at once.
type Pipeline struct {
	cfg       *config.Config
	fetchers  map[string]engine.Engine
	prefilter *cleaner.Prefilter
	extractor llm.StructuredExtractor
	metrics   *Metrics
}

// New wires a Pipeline. Every configured site gets its fetcher here, so a
// site whose fetch mode cannot be served is a startup error.
func New(cfg *config.Config, engines Engines, extractor llm.StructuredExtractor, metrics *Metrics) (*Pipeline, error) {
	fetchers := make(map[string]engine.Engine, len(cfg.Sites))
	for _, name := range cfg.SiteNames() {
		site, _ := cfg.Site(name)
		if site.FetchMode == engine.ModeHTTP || site.FetchMode == engine.ModeAuto {
			if engines.HTTP == nil {
				return nil, fmt.Errorf("site %q: fetch mode %q needs an http engine", name, site.FetchMode)
			}
		}
		f, err := engine.ForMode(site.FetchMode, engines.HTTP, engines.Browser, acceptListings(site.ProductSelector))
		if err != nil {
			return nil, fmt.Errorf("site %q: %w", name, err)
		}
		fetchers[name] = f
	}

	return &Pipeline{
		cfg:       cfg,
		fetchers:  fetchers,
		prefilter: cleaner.NewPrefilter(cfg.Extract),
		extractor: extractor,
		metrics:   metrics,
	}, nil
}

// acceptListings rejects pages that carry no listing blocks, so auto mode
// falls back to the browser for script-rendered grids.
func acceptListings(selector string) engine.AcceptFunc {
	return func(r *engine.FetchResult) error {
		if cleaner.CountBlocks(r.HTML, selector) == 0 {
			return fmt.Errorf("no elements match %q", selector)
		}
		return nil
	}
}

// RunOptions adjust a single run.
type RunOptions struct {
	// SkipDelay disables pacing between visits to the same site.
	SkipDelay bool

	// Dedup overrides the configured duplicate policy when set.
	Dedup string
}

// Run executes units, at most Crawl.Concurrency at a time. A failing unit
// never affects the others; results come back in unit order.
func (p *Pipeline) Run(ctx context.Context, units []Unit, opts RunOptions) []*UnitResult {
	pacers := p.pacers(units, opts.SkipDelay)
	results := make([]*UnitResult, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.cfg.Crawl.Concurrency))
	for i, u := range units {
		g.Go(func() error {
			results[i] = p.RunUnit(gctx, u, pacers[u.Site], opts.Dedup)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// pacers builds one limiter per site for this run. Limiters are safe for
// concurrent use; nothing else is shared between units.
func (p *Pipeline) pacers(units []Unit, skip bool) map[string]*rate.Limiter {
	limit := rate.Inf
	if !skip && p.cfg.Crawl.RequestDelay > 0 {
		limit = rate.Every(p.cfg.Crawl.RequestDelay)
	}
	pacers := make(map[string]*rate.Limiter)
	for _, u := range units {
		if _, ok := pacers[u.Site]; !ok {
			pacers[u.Site] = rate.NewLimiter(limit, 1)
		}
	}
	return pacers
}

// RunUnit runs one unit to completion. pacer may be nil for no pacing and
// policy "" means the configured dedup policy. Failures are recorded on the
// result, never returned.
func (p *Pipeline) RunUnit(ctx context.Context, u Unit, pacer *rate.Limiter, policy string) *UnitResult {
	start := time.Now()
	res := &UnitResult{Unit: u, URL: u.URL(), Products: []models.Product{}}
	log := slog.With("site", u.Site, "category", u.Category, "search", u.Term())

	fetcher, ok := p.fetchers[u.Site]
	if !ok {
		res.fail(StageFetch, res.URL, models.NewScrapeError(models.ErrCodeUnknownSite, "no fetcher for site", nil))
		return res
	}

	pageURL := res.URL
	for page := 1; page <= p.cfg.Crawl.MaxPagesPerSearch; page++ {
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				res.fail(StageFetch, pageURL, err)
				break
			}
		}

		pr, next := p.runPage(ctx, log, fetcher, u, pageURL, page)
		res.Pages = append(res.Pages, pr.summary)
		res.Products = append(res.Products, pr.products...)
		res.Rejections = append(res.Rejections, pr.rejections...)
		res.Errors = append(res.Errors, pr.errors...)
		for _, e := range pr.errors {
			p.metrics.incError(e.Stage, e.Code)
		}

		if next == "" {
			break
		}
		pageURL = next
	}

	if policy == "" {
		policy = p.cfg.Output.Dedup
	}
	before := len(res.Products)
	res.Products = dedup.Apply(policy, res.Products)
	res.Duplicates = before - len(res.Products)
	res.Duration = time.Since(start)

	p.metrics.addProducts(len(res.Products))
	p.metrics.observeUnit(res.Duration)

	log.Info("unit complete",
		"pages", len(res.Pages),
		"products", len(res.Products),
		"rejected", len(res.Rejections),
		"duplicates", res.Duplicates,
		"errors", len(res.Errors),
		"durationMs", res.Duration.Milliseconds(),
	)
	return res
}

type pageOutcome struct {
	summary    PageSummary
	products   []models.Product
	rejections []models.ValidationError
	errors     []UnitError
}

// runPage processes one results page and returns the next page URL, or ""
// when pagination should stop.
func (p *Pipeline) runPage(ctx context.Context, log *slog.Logger, fetcher engine.Engine, u Unit, pageURL string, page int) (pageOutcome, string) {
	out := pageOutcome{summary: PageSummary{Page: page, URL: pageURL}}
	fail := func(stage string, err error) {
		ue := newUnitError(stage, pageURL, err)
		out.errors = append(out.errors, ue)
		log.Warn(stage+" failed", "page", page, "url", pageURL, "code", ue.Code, "error", err)
	}

	// ── 1. Fetch ──────────────────────────────────────────────────────
	fetchStart := time.Now()
	fetched, err := fetcher.Fetch(ctx, &engine.FetchRequest{URL: pageURL, Stealth: u.Config.Stealth})
	if err != nil {
		fail(StageFetch, err)
		return out, ""
	}
	out.summary.Engine = fetched.EngineName
	p.metrics.observePage(u.Site, fetched.EngineName, time.Since(fetchStart))

	sourceURL := pageURL
	if fetched.FinalURL != "" {
		sourceURL = fetched.FinalURL
	}

	// ── 2. Pre-filter ─────────────────────────────────────────────────
	frag, err := p.prefilter.Fragment(fetched.HTML, u.Config.ProductSelector, sourceURL)
	if err != nil {
		fail(StageFilter, err)
		return out, ""
	}
	out.summary.Listings = frag.Matched
	out.summary.Blocks = frag.Blocks
	if frag.Empty() {
		log.Info("no listings on page", "page", page, "url", sourceURL)
		return out, ""
	}
	log.Debug("fragment ready",
		"page", page, "blocks", frag.Blocks, "matched", frag.Matched,
		"chars", len(frag.Text), "truncated", frag.Truncated, "tokens", frag.Tokens,
	)

	// ── 3. Extract ────────────────────────────────────────────────────
	extractStart := time.Now()
	items, err := p.extractor.Extract(ctx, frag.Text, llm.ExtractContext{SourceURL: sourceURL, Category: u.Category})
	p.metrics.observeExtract(time.Since(extractStart), len(items), len(frag.Text))
	if err != nil {
		fail(StageExtract, err)
	}
	out.summary.Extracted = len(items)

	// ── 4. Validate ───────────────────────────────────────────────────
	n := normalizer.Normalizer{SourceURL: sourceURL, Category: u.Category}
	out.products, out.rejections = n.Batch(items)
	out.summary.Accepted = len(out.products)
	for _, r := range out.rejections {
		p.metrics.incRejection(r.Field)
		log.Warn("item rejected",
			"page", page, "index", r.Index, "field", r.Field, "reason", r.Reason, "item", r.Item,
		)
	}

	// ── 5. Pagination ─────────────────────────────────────────────────
	next, ok := cleaner.NextPageURL(fetched.HTML, u.Config.PaginationSelector, sourceURL)
	if !ok {
		return out, ""
	}
	return out, next
}

// UnitResult is everything one unit produced. Products is never nil.
type UnitResult struct {
	Unit       Unit
	URL        string
	Pages      []PageSummary
	Products   []models.Product
	Rejections []models.ValidationError
	Errors     []UnitError
	Duplicates int
	Duration   time.Duration
}

// Failed reports whether the unit produced nothing because of an error.
func (r *UnitResult) Failed() bool {
	return len(r.Products) == 0 && len(r.Errors) > 0
}

func (r *UnitResult) fail(stage, url string, err error) {
	ue := newUnitError(stage, url, err)
	r.Errors = append(r.Errors, ue)
	slog.Warn(stage+" failed", "site", r.Unit.Site, "category", r.Unit.Category, "url", url, "code", ue.Code, "error", err)
}

// PageSummary counts what happened on one results page.
type PageSummary struct {
	Page      int    `json:"page"`
	URL       string `json:"url"`
	Engine    string `json:"engine,omitempty"`
	Listings  int    `json:"listings"`
	Blocks    int    `json:"blocks"`
	Extracted int    `json:"extracted"`
	Accepted  int    `json:"accepted"`
}

// UnitError is a contained failure inside a unit.
type UnitError struct {
	Stage   string `json:"stage"`
	URL     string `json:"url"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e UnitError) Error() string {
	return fmt.Sprintf("%s %s: %s: %s", e.Stage, e.URL, e.Code, e.Message)
}

func newUnitError(stage, url string, err error) UnitError {
	ue := UnitError{Stage: stage, URL: url, Code: models.ErrCodeInternal, Message: err.Error()}
	var se *models.ScrapeError
	switch {
	case errors.As(err, &se):
		ue.Code = se.Code
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		ue.Code = models.ErrCodeTimeout
	}
	return ue
}
