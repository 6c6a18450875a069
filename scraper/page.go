package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/dealscout/engine"
	"github.com/use-agent/dealscout/models"
	"github.com/ysmood/gson"
)

// Render loads req.URL in a pooled tab and returns the HTML once client-side
// scripts have settled. It matches engine.RenderFunc.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Deadline              – navigation + content + settle budget
//  2. Acquire page          – borrow a tab from the pool (or create one)
//  3. DEFER: cleanup        – about:blank + return to pool
//  4. Stealth injection     – before navigation
//  5. Headers               – search-engine Referer + caller headers
//  6. Hijack mount          – block heavy resources and ad hosts
//  7. Navigate + load       – bounded by NavigationTimeout
//  8. DOM stable            – bounded by ContentTimeout, best-effort
//  9. Settle                – fixed delay for late listing widgets
//  10. Extract              – page.HTML() + document.title
//
// Steps 4-6 must run before step 7: stealth JS, headers and blocking only
// apply to navigations that start after they are installed.
func (s *Scraper) Render(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	navTimeout := s.scraperCfg.NavigationTimeout
	if req.Timeout > 0 {
		navTimeout = req.Timeout
	}

	// ── 1. Deadline ───────────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, navTimeout+s.scraperCfg.ContentTimeout+s.scraperCfg.SettleDelay)
	defer cancel()

	// ── 2. Acquire page from pool ─────────────────────────────────────
	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	page, acquireErr := s.pagePool.Get(func() (*rod.Page, error) {
		return s.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page from pool",
			acquireErr,
		)
	}

	// ── 3. Cleanup: uses the page without the request context so it
	// still works after the deadline has passed.
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		s.pagePool.Put(page)
	}()

	// ── 4. Stealth injection ──────────────────────────────────────────
	if req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	// ── 5. Extra headers ──────────────────────────────────────────────
	if headers := requestHeaders(req); len(headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)
	}

	// ── 6. Hijack router ──────────────────────────────────────────────
	if router := setupHijack(page, s.scraperCfg.BlockedResourceTypes, s.scraperCfg.BlockAds); router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	// ── 7. Navigate + load ────────────────────────────────────────────
	navCtx, navCancel := context.WithTimeout(ctx, navTimeout)
	navErr := page.Context(navCtx).Navigate(req.URL)
	if navErr == nil {
		navErr = page.Context(navCtx).WaitLoad()
	}
	navCancel()
	if navErr != nil {
		return nil, categorizeError(navErr, "navigation to results page failed")
	}

	// ── 8. DOM stable ─────────────────────────────────────────────────
	contentCtx, contentCancel := context.WithTimeout(ctx, s.scraperCfg.ContentTimeout)
	if stableErr := page.Context(contentCtx).WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"url", req.URL, "error", stableErr,
		)
	}
	contentCancel()

	// ── 9. Settle ─────────────────────────────────────────────────────
	if d := s.scraperCfg.SettleDelay; d > 0 {
		select {
		case <-ctx.Done():
			return nil, categorizeError(ctx.Err(), "page did not settle in time")
		case <-time.After(d):
		}
	}

	// ── 10. Extract rendered HTML ─────────────────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(htmlErr, "failed to extract page HTML")
	}
	s.rendered.Add(1)

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	return &engine.FetchResult{
		HTML:       rawHTML,
		Title:      evalStringOrEmpty(p, `() => document.title`),
		StatusCode: navigationStatus(p),
		FinalURL:   finalURL,
	}, nil
}

// requestHeaders merges caller headers over a search-engine Referer for the
// target host.
func requestHeaders(req *engine.FetchRequest) map[string]string {
	headers := make(map[string]string, len(req.Headers)+1)
	if _, hasReferer := req.Headers["Referer"]; !hasReferer {
		if u, err := url.Parse(req.URL); err == nil && u.Hostname() != "" {
			headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	return headers
}

// navigationStatus reads the HTTP status of the main document from the
// Performance API, or 0 when unavailable.
func navigationStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ScrapeErrors.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "render canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
