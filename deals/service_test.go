package deals

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/engine"
	"github.com/use-agent/dealscout/llm"
	"github.com/use-agent/dealscout/models"
	"github.com/use-agent/dealscout/pipeline"
	"github.com/use-agent/dealscout/webhook"
)

const listing = `<html><body>
<article class="prd"><a href="/p/1">Phone A</a></article>
<article class="prd"><a href="/p/2">Phone B</a></article>
</body></html>`

const response = `{"products": [
	{"name": "Phone A", "price": 80, "original_price": 100, "url": "/p/1", "rating": 4.5},
	{"name": "Phone B", "price": 50, "url": "/p/2"},
	{"name": "Broken", "url": "/p/3"}
]}`

func testService(t *testing.T, hookURL string) (*Service, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		Sites: map[string]config.SiteConfig{
			"shop": {
				BaseURL:         "https://shop.example/search?q=",
				ProductSelector: "article.prd",
				FetchMode:       engine.ModeBrowser,
				Currency:        "$",
			},
		},
		Categories: []string{"phones", "laptops"},
		Crawl:      config.CrawlConfig{MaxPagesPerSearch: 1, Concurrency: 1},
		Extract: config.ExtractConfig{
			MaxBlocks: 5, MaxFragmentChars: 20000, MaxItems: 5,
			FragmentFormat: "html", SummaryTopN: 10,
		},
		Output: config.OutputConfig{Dir: t.TempDir(), Format: "csv", Dedup: "none"},
	}

	browser := engine.Func{EngineName: "fake", FetchFunc: func(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
		if strings.HasSuffix(req.URL, "laptops") {
			return nil, models.NewScrapeError(models.ErrCodeTimeout, "navigation timed out", nil)
		}
		return &engine.FetchResult{HTML: listing, FinalURL: req.URL}, nil
	}}
	p, err := pipeline.New(cfg, pipeline.Engines{Browser: browser}, &llm.StaticExtractor{Responses: []string{response}}, nil)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return NewService(cfg, p, webhook.NewNotifier(hookURL, "k")), cfg
}

func TestRunSingleUnit(t *testing.T) {
	svc, cfg := testService(t, "")

	run, err := svc.Run(context.Background(), models.DealsRequest{Site: "shop", Category: "phones", SkipDelay: true}, Options{Export: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(run.Units) != 1 || run.Combined != nil {
		t.Fatalf("units = %d, combined = %v", len(run.Units), run.Combined)
	}

	u := run.Units[0]
	if u.Products != 2 || u.Rejected != 1 {
		t.Fatalf("products=%d rejected=%d", u.Products, u.Rejected)
	}
	if !strings.HasPrefix(u.Text, "Top Deals for phones on Shop:\n1. Phone A - $80.00 (Was $100.00, Save $20.00, 20.0% off) - 4.5★") {
		t.Fatalf("summary text:\n%s", u.Text)
	}
	if len(u.Exports) != 1 || !strings.HasPrefix(u.Exports[0], cfg.Output.Dir) {
		t.Fatalf("exports = %v", u.Exports)
	}
	if _, err := os.Stat(u.Exports[0]); err != nil {
		t.Fatalf("export missing: %v", err)
	}
	if u.Failed || u.Summary.Deals[0].Name != "Phone A" {
		t.Fatalf("failed=%v, first deal %q", u.Failed, u.Summary.Deals[0].Name)
	}
}

func TestRunAllCategoriesContainsFailures(t *testing.T) {
	var event webhook.Event
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !webhook.Verify("k", body, r.Header.Get(webhook.SignatureHeader)) {
			t.Error("webhook not signed")
		}
		_ = json.Unmarshal(body, &event)
	}))
	defer hook.Close()

	svc, _ := testService(t, hook.URL)
	run, err := svc.Run(context.Background(), models.DealsRequest{SkipDelay: true}, Options{Export: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(run.Units) != 2 {
		t.Fatalf("units = %d", len(run.Units))
	}

	laptops := run.Units[1]
	if laptops.Category != "laptops" || laptops.Products != 0 || len(laptops.Errors) != 1 || !laptops.Failed {
		t.Fatalf("laptops unit = %+v", laptops)
	}
	if laptops.Text != "No products found." || len(laptops.Exports) != 0 {
		t.Fatalf("empty unit should skip export: %q %v", laptops.Text, laptops.Exports)
	}

	if run.Combined == nil || run.Combined.Products != 2 || len(run.Combined.Exports) != 1 {
		t.Fatalf("combined = %+v", run.Combined)
	}
	if !strings.Contains(run.Combined.Exports[0], "products_combined_") {
		t.Fatalf("combined export = %q", run.Combined.Exports[0])
	}
	if !strings.HasPrefix(run.Combined.Text, "Top Deals Found:") {
		t.Fatalf("combined text = %q", run.Combined.Text)
	}

	if event.Type != webhook.EventRunCompleted || event.RunID != run.RunID {
		t.Fatalf("webhook event = %+v", event)
	}
}

func TestRunRejectsBadRequests(t *testing.T) {
	svc, _ := testService(t, "")

	tests := []struct {
		name string
		req  models.DealsRequest
		code string
	}{
		{"unknown site", models.DealsRequest{Site: "ebay"}, models.ErrCodeUnknownSite},
		{"unknown category", models.DealsRequest{Category: "toys"}, models.ErrCodeUnknownCategory},
		{"bad dedup", models.DealsRequest{Dedup: "fuzzy"}, models.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), tt.req, Options{})
			var se *models.ScrapeError
			if !errors.As(err, &se) || se.Code != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}
