// Package deals runs a full search (plan, pipeline, ranking, exports,
// notification) and reports on it. The CLI, the HTTP API and the MCP
// server all go through Service.Run.
package deals

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/dedup"
	"github.com/use-agent/dealscout/models"
	"github.com/use-agent/dealscout/pipeline"
	"github.com/use-agent/dealscout/report"
	"github.com/use-agent/dealscout/webhook"
)

// CombinedLabel names the export holding every unit's products.
const CombinedLabel = "combined"

// Options adjust what Run does besides searching.
type Options struct {
	// Export writes one file set per unit (plus a combined one) to the
	// configured output directory.
	Export bool

	// Format overrides the configured export format when set.
	Format string

	// AsyncNotify sends the webhook in the background instead of waiting.
	AsyncNotify bool
}

// UnitReport is the outcome of one (site, category) unit.
type UnitReport struct {
	Site       string                   `json:"site"`
	Category   string                   `json:"category"`
	Search     string                   `json:"search"`
	URL        string                   `json:"url"`
	Pages      []pipeline.PageSummary   `json:"pages"`
	Products   int                      `json:"products"`
	Rejected   int                      `json:"rejected"`
	Duplicates int                      `json:"duplicates"`
	Failed     bool                     `json:"failed"`
	Errors     []pipeline.UnitError     `json:"errors,omitempty"`
	Rejections []models.ValidationError `json:"rejections,omitempty"`
	Exports    []string                 `json:"exports,omitempty"`
	Summary    report.Summary           `json:"summary"`
	Text       string                   `json:"summary_text"`
	DurationMs int64                    `json:"duration_ms"`
}

// CombinedReport covers every unit of a multi-unit run.
type CombinedReport struct {
	Products int            `json:"products"`
	Exports  []string       `json:"exports,omitempty"`
	Summary  report.Summary `json:"summary"`
	Text     string         `json:"summary_text"`
}

// RunReport is the outcome of one Run.
type RunReport struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMs int64           `json:"duration_ms"`
	Units      []*UnitReport   `json:"units"`
	Combined   *CombinedReport `json:"combined,omitempty"`
}

// Products is the total number of validated products across units.
func (r *RunReport) Products() int {
	n := 0
	for _, u := range r.Units {
		n += u.Products
	}
	return n
}

// Service wires configuration, the pipeline and the notifier.
type Service struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	notifier *webhook.Notifier
	now      func() time.Time
}

// NewService creates a Service. notifier may be nil.
func NewService(cfg *config.Config, p *pipeline.Pipeline, notifier *webhook.Notifier) *Service {
	return &Service{cfg: cfg, pipeline: p, notifier: notifier, now: time.Now}
}

// Run plans the request, runs every unit and builds the report. Only an
// invalid request (unknown site or category, bad dedup policy) is an error;
// unit failures are recorded on the report.
func (s *Service) Run(ctx context.Context, req models.DealsRequest, opts Options) (*RunReport, error) {
	if err := dedup.Validate(req.Dedup); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), nil)
	}
	units, err := pipeline.Plan(s.cfg, req.Site, req.Category, req.Search)
	if err != nil {
		return nil, err
	}

	started := s.now()
	run := &RunReport{RunID: report.NewRunID(), StartedAt: started}
	log := slog.With("run_id", run.RunID)
	log.Info("run starting", "units", len(units), "site", req.Site, "category", req.Category, "search", req.Search)

	results := s.pipeline.Run(ctx, units, pipeline.RunOptions{SkipDelay: req.SkipDelay, Dedup: req.Dedup})

	var all []models.Product
	for _, res := range results {
		u := s.unitReport(res)
		if opts.Export {
			u.Exports = s.export(log, opts, run, res.Unit.Category, res.Unit.Site, res.Products)
		}
		run.Units = append(run.Units, u)
		all = append(all, res.Products...)
	}

	if len(units) > 1 {
		summary := report.Summarize(all, "", "", s.cfg.Extract.SummaryTopN)
		combined := &CombinedReport{
			Products: len(all),
			Summary:  summary,
			Text:     report.FormatSummary(summary, s.sharedCurrency(units)),
		}
		if opts.Export {
			combined.Exports = s.export(log, opts, run, CombinedLabel, "", all)
		}
		run.Combined = combined
	}

	run.DurationMs = s.now().Sub(started).Milliseconds()
	log.Info("run complete", "units", len(run.Units), "products", run.Products(), "durationMs", run.DurationMs)

	event := webhook.NewEvent(webhook.EventRunCompleted, run.RunID, run)
	if opts.AsyncNotify {
		s.notifier.SendAsync(event)
	} else if err := s.notifier.Send(ctx, event); err != nil {
		log.Warn("run notification not delivered", "error", err)
	}
	return run, nil
}

func (s *Service) unitReport(res *pipeline.UnitResult) *UnitReport {
	u := res.Unit
	summary := report.Summarize(res.Products, u.Category, u.Site, s.cfg.Extract.SummaryTopN)
	return &UnitReport{
		Site:       u.Site,
		Category:   u.Category,
		Search:     u.Term(),
		URL:        res.URL,
		Pages:      res.Pages,
		Products:   len(res.Products),
		Rejected:   len(res.Rejections),
		Duplicates: res.Duplicates,
		Failed:     res.Failed(),
		Errors:     res.Errors,
		Rejections: res.Rejections,
		Summary:    summary,
		Text:       report.FormatSummary(summary, u.Config.Currency),
		DurationMs: res.Duration.Milliseconds(),
	}
}

func (s *Service) export(log *slog.Logger, opts Options, run *RunReport, category, site string, products []models.Product) []string {
	format := opts.Format
	if format == "" {
		format = s.cfg.Output.Format
	}
	paths, err := report.WriteExport(report.Export{
		Dir:      s.cfg.Output.Dir,
		Format:   format,
		Category: category,
		Site:     site,
		RunID:    run.RunID,
		Now:      run.StartedAt,
	}, products)
	switch {
	case errors.Is(err, report.ErrNoProducts):
		log.Info("nothing to export", "category", category, "site", site)
	case err != nil:
		log.Error("export failed", "category", category, "site", site, "error", err)
	default:
		log.Info("export written", "category", category, "site", site, "products", len(products), "files", paths)
	}
	return paths
}

// sharedCurrency is the currency of the units' sites when they all agree.
func (s *Service) sharedCurrency(units []pipeline.Unit) string {
	if len(units) == 0 {
		return ""
	}
	currency := units[0].Config.Currency
	for _, u := range units[1:] {
		if u.Config.Currency != currency {
			return ""
		}
	}
	return currency
}
