package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/engine"
	"github.com/use-agent/dealscout/llm"
	"github.com/use-agent/dealscout/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Sites: map[string]config.SiteConfig{
			"shop": {
				BaseURL:            "https://shop.example/search?q=",
				ProductSelector:    "article.prd",
				PaginationSelector: "a.pg-next",
				FetchMode:          engine.ModeBrowser,
			},
			"mall": {
				BaseURL:         "https://mall.example/s?k=",
				ProductSelector: "div.item",
				FetchMode:       engine.ModeBrowser,
			},
		},
		Categories: []string{"phones", "laptops"},
		Crawl:      config.CrawlConfig{MaxPagesPerSearch: 3, Concurrency: 2},
		Extract: config.ExtractConfig{
			MaxBlocks:        5,
			MaxFragmentChars: 20000,
			MaxItems:         5,
			FragmentFormat:   "html",
			StripSelectors:   []string{"script", "style"},
			SummaryTopN:      10,
		},
		Output: config.OutputConfig{Dedup: "none"},
	}
}

// fakeBrowser serves canned pages by URL and records every request.
type fakeBrowser struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]error
	seen  []string
}

func (f *fakeBrowser) Name() string { return "fake" }

func (f *fakeBrowser) Fetch(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, req.URL)
	if err := f.fail[req.URL]; err != nil {
		return nil, err
	}
	html, ok := f.pages[req.URL]
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "not found", nil)
	}
	return &engine.FetchResult{HTML: html, FinalURL: req.URL, EngineName: "fake"}, nil
}

func (f *fakeBrowser) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func listingPage(n int, next string) string {
	var b strings.Builder
	b.WriteString("<html><body><script>track()</script>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<article class="prd"><a href="/item/%d">Item %d</a><span>$%d</span></article>`, i, i, 10+i)
	}
	if next != "" {
		fmt.Fprintf(&b, `<a class="pg-next" href="%s">Next</a>`, next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

const twoValidOneInvalid = `{"products": [
	{"name": "Phone A", "price": 80, "original_price": 100, "url": "/item/1"},
	{"name": "Phone B", "price": 120, "url": "https://shop.example/item/2"},
	{"name": "Phone C", "url": "/item/3"}
]}`

func newTestPipeline(t *testing.T, cfg *config.Config, browser engine.Engine, ex llm.StructuredExtractor) *Pipeline {
	t.Helper()
	p, err := New(cfg, Engines{Browser: browser}, ex, NewMetrics())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestRunUnitEndToEnd(t *testing.T) {
	cfg := testConfig()
	browser := &fakeBrowser{pages: map[string]string{
		"https://shop.example/search?q=phones": listingPage(2, ""),
	}}
	ex := &llm.StaticExtractor{Responses: []string{twoValidOneInvalid}}
	p := newTestPipeline(t, cfg, browser, ex)

	units, err := Plan(cfg, "shop", "phones", "")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	res := p.RunUnit(context.Background(), units[0], nil, "")

	if len(res.Products) != 2 {
		t.Fatalf("products = %d, want 2", len(res.Products))
	}
	if len(res.Rejections) != 1 || res.Rejections[0].Field != "price" || res.Rejections[0].Index != 2 {
		t.Fatalf("rejections = %+v", res.Rejections)
	}
	if res.Products[0].URL != "https://shop.example/item/1" {
		t.Fatalf("url = %q", res.Products[0].URL)
	}
	if res.Products[0].Category != "phones" {
		t.Fatalf("category = %q", res.Products[0].Category)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("errors = %v", res.Errors)
	}

	frags := ex.Fragments()
	if len(frags) != 1 {
		t.Fatalf("extract calls = %d, want 1", len(frags))
	}
	if strings.Contains(frags[0], "track()") {
		t.Fatal("scripts should be stripped from the fragment")
	}
	if strings.Count(frags[0], `class="prd"`) != 2 {
		t.Fatalf("fragment should hold both listings: %s", frags[0])
	}
	if pg := res.Pages[0]; pg.Listings != 2 || pg.Extracted != 3 || pg.Accepted != 2 {
		t.Fatalf("page summary = %+v", pg)
	}
}

func TestRunUnitFollowsPagination(t *testing.T) {
	cfg := testConfig()
	cfg.Crawl.MaxPagesPerSearch = 2
	browser := &fakeBrowser{pages: map[string]string{
		"https://shop.example/search?q=phones":        listingPage(1, "/search?q=phones&page=2"),
		"https://shop.example/search?q=phones&page=2": listingPage(1, "/search?q=phones&page=3"),
		"https://shop.example/search?q=phones&page=3": listingPage(1, ""),
	}}
	ex := &llm.StaticExtractor{Responses: []string{`{"products": [{"name": "A", "price": 1, "url": "/a"}]}`}}
	p := newTestPipeline(t, cfg, browser, ex)

	units, _ := Plan(cfg, "shop", "phones", "")
	res := p.RunUnit(context.Background(), units[0], nil, "")

	if got := browser.requests(); len(got) != 2 {
		t.Fatalf("requests = %v, want the page cap of 2", got)
	}
	if len(res.Pages) != 2 || len(res.Products) != 2 {
		t.Fatalf("pages=%d products=%d", len(res.Pages), len(res.Products))
	}

	deduped := p.RunUnit(context.Background(), units[0], nil, "url")
	if len(deduped.Products) != 1 || deduped.Duplicates != 1 {
		t.Fatalf("url dedup: products=%d duplicates=%d", len(deduped.Products), deduped.Duplicates)
	}
}

func TestRunUnitStopsOnEmptyPage(t *testing.T) {
	cfg := testConfig()
	browser := &fakeBrowser{pages: map[string]string{
		"https://shop.example/search?q=phones": `<html><body><p>No results</p><a class="pg-next" href="/x">Next</a></body></html>`,
	}}
	ex := &llm.StaticExtractor{Responses: []string{twoValidOneInvalid}}
	p := newTestPipeline(t, cfg, browser, ex)

	units, _ := Plan(cfg, "shop", "phones", "")
	res := p.RunUnit(context.Background(), units[0], nil, "")

	if ex.Calls() != 0 {
		t.Fatal("extraction must not run for an empty fragment")
	}
	if len(res.Products) != 0 || len(res.Errors) != 0 {
		t.Fatalf("no results is not an error: %+v", res)
	}
	if res.Failed() {
		t.Fatal("an empty unit without errors is not a failure")
	}
	if len(browser.requests()) != 1 {
		t.Fatal("pagination should stop at a page without listings")
	}
}

func TestRunUnitExtractionFailureYieldsZero(t *testing.T) {
	cfg := testConfig()
	browser := &fakeBrowser{pages: map[string]string{
		"https://shop.example/search?q=phones": listingPage(2, ""),
	}}
	ex := &llm.StaticExtractor{Responses: []string{"I'm sorry, I can't help with that."}}
	p := newTestPipeline(t, cfg, browser, ex)

	units, _ := Plan(cfg, "shop", "phones", "")
	res := p.RunUnit(context.Background(), units[0], nil, "")

	if len(res.Products) != 0 {
		t.Fatalf("products = %d", len(res.Products))
	}
	if len(res.Errors) != 1 || res.Errors[0].Stage != StageExtract || res.Errors[0].Code != models.ErrCodeLLMMalformed {
		t.Fatalf("errors = %+v", res.Errors)
	}
	if !res.Failed() {
		t.Fatal("unit should report failure")
	}
}

func TestRunContainsUnitFailures(t *testing.T) {
	cfg := testConfig()
	browser := &fakeBrowser{
		pages: map[string]string{
			"https://shop.example/search?q=phones":  listingPage(2, ""),
			"https://shop.example/search?q=laptops": listingPage(2, ""),
			"https://mall.example/s?k=laptops":      `<div class="item">x</div>`,
		},
		fail: map[string]error{
			"https://mall.example/s?k=phones": models.NewScrapeError(models.ErrCodeTimeout, "navigation timed out", context.DeadlineExceeded),
		},
	}
	ex := &llm.StaticExtractor{Responses: []string{twoValidOneInvalid}}
	p := newTestPipeline(t, cfg, browser, ex)

	units, err := Plan(cfg, All, All, "")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	results := p.Run(context.Background(), units, RunOptions{SkipDelay: true})

	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}
	byUnit := map[string]*UnitResult{}
	for _, r := range results {
		byUnit[r.Unit.String()] = r
	}

	failed := byUnit["mall/phones"]
	if failed == nil || !failed.Failed() || failed.Errors[0].Code != models.ErrCodeTimeout {
		t.Fatalf("mall/phones should fail with a timeout: %+v", failed)
	}
	for _, key := range []string{"shop/phones", "shop/laptops", "mall/laptops"} {
		if r := byUnit[key]; r == nil || len(r.Products) != 2 {
			t.Fatalf("%s should be unaffected: %+v", key, r)
		}
	}
}

func TestRunPacesSameSiteVisits(t *testing.T) {
	cfg := testConfig()
	cfg.Crawl.RequestDelay = 40 * time.Millisecond
	cfg.Crawl.Concurrency = 1
	browser := &fakeBrowser{pages: map[string]string{
		"https://shop.example/search?q=phones":  listingPage(1, ""),
		"https://shop.example/search?q=laptops": listingPage(1, ""),
	}}
	ex := &llm.StaticExtractor{Responses: []string{`{"products": []}`}}
	p := newTestPipeline(t, cfg, browser, ex)

	units, _ := Plan(cfg, "shop", All, "")

	start := time.Now()
	p.Run(context.Background(), units, RunOptions{})
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Fatalf("second visit should wait for the pacer, took %v", elapsed)
	}

	start = time.Now()
	p.Run(context.Background(), units, RunOptions{SkipDelay: true})
	if elapsed := time.Since(start); elapsed > 30*time.Millisecond {
		t.Fatalf("skip delay should not pace, took %v", elapsed)
	}
}

func TestRunUnitCanceledPacer(t *testing.T) {
	cfg := testConfig()
	browser := &fakeBrowser{pages: map[string]string{}}
	p := newTestPipeline(t, cfg, browser, &llm.StaticExtractor{})

	pacer := rate.NewLimiter(rate.Every(time.Hour), 1)
	pacer.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	units, _ := Plan(cfg, "shop", "phones", "")
	res := p.RunUnit(ctx, units[0], pacer, "")
	if len(res.Errors) != 1 || len(browser.requests()) != 0 {
		t.Fatalf("canceled run should record one error and fetch nothing: %+v", res.Errors)
	}
}

func TestNewRejectsUnservableFetchMode(t *testing.T) {
	cfg := testConfig()
	site := cfg.Sites["shop"]
	site.FetchMode = engine.ModeAuto
	cfg.Sites["shop"] = site

	_, err := New(cfg, Engines{Browser: &fakeBrowser{}}, &llm.StaticExtractor{}, nil)
	if err == nil {
		t.Fatal("auto mode without an http engine should fail")
	}
}

func TestAcceptListings(t *testing.T) {
	accept := acceptListings("article.prd")
	if err := accept(&engine.FetchResult{HTML: listingPage(1, "")}); err != nil {
		t.Fatalf("page with listings rejected: %v", err)
	}
	if err := accept(&engine.FetchResult{HTML: "<div id=app></div>"}); err == nil {
		t.Fatal("empty shell should be rejected")
	}
}

func TestNewUnitError(t *testing.T) {
	ue := newUnitError(StageFetch, "u", fmt.Errorf("wrapped: %w", models.NewScrapeError(models.ErrCodeNavigation, "x", nil)))
	if ue.Code != models.ErrCodeNavigation {
		t.Fatalf("code = %s", ue.Code)
	}
	if ue := newUnitError(StageFetch, "u", errors.New("boom")); ue.Code != models.ErrCodeInternal {
		t.Fatalf("code = %s", ue.Code)
	}
}
