package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/dealscout/app"
	"github.com/use-agent/dealscout/config"
	"github.com/use-agent/dealscout/deals"
	"github.com/use-agent/dealscout/models"
	"github.com/use-agent/dealscout/pipeline"
)

func main() {
	os.Exit(run())
}

// run holds the whole command so deferred cleanup, including shutting the
// browser down, happens before the process exits.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	site := flag.String("site", pipeline.All, "Site to search (a configured site key or \"all\")")
	category := flag.String("category", pipeline.All, "Category to search (a configured category or \"all\")")
	search := flag.String("search", "", "Custom search term (otherwise the category is used)")
	noDelay := flag.Bool("no-delay", false, "Skip the delay between requests to the same site")
	format := flag.String("format", cfg.Output.Format, "Output format: csv, json, or dual")
	outDir := flag.String("out", cfg.Output.Dir, "Output directory")
	dedupPolicy := flag.String("dedup", cfg.Output.Dedup, "Duplicate policy: none, url, or similar")
	concurrency := flag.Int("concurrency", cfg.Crawl.Concurrency, "Number of (site, category) searches run at once")
	metricsAddr := flag.String("metrics-addr", cfg.Metrics.Addr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	cfg.Output.Format = *format
	cfg.Output.Dir = *outDir
	cfg.Output.Dedup = *dedupPolicy
	cfg.Crawl.Concurrency = *concurrency
	cfg.Metrics.Addr = *metricsAddr
	if *verbose {
		cfg.Log.Level = "debug"
	}

	app.InitLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := pipeline.NewMetrics()
	a, err := app.New(cfg, metrics)
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		return 1
	}
	defer a.Close()

	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Addr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		slog.Info("metrics server enabled", "addr", cfg.Metrics.Addr)
	}

	req := models.DealsRequest{
		Site:      *site,
		Category:  *category,
		Search:    *search,
		SkipDelay: *noDelay,
		Dedup:     cfg.Output.Dedup,
	}
	result, err := a.Service.Run(ctx, req, deals.Options{Export: true})
	if err != nil {
		slog.Error("search failed", "error", err)
		return 2
	}

	printReport(result)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
		cancel()
	}
	return 0
}

func printReport(run *deals.RunReport) {
	for _, u := range run.Units {
		fmt.Printf("\nSearching for '%s' in %s category on %s...\n", u.Search, u.Category, u.Site)
		if u.Failed {
			for _, e := range u.Errors {
				fmt.Printf("Search failed at %s: [%s] %s\n", e.Stage, e.Code, e.Message)
			}
		}
		if u.Products == 0 {
			fmt.Printf("No products found for '%s' in %s category on %s\n", u.Search, u.Category, u.Site)
			continue
		}
		for _, path := range u.Exports {
			fmt.Printf("Saved %d products to %s\n", u.Products, path)
		}
		fmt.Printf("\n%s\n", u.Text)
	}

	if run.Combined == nil {
		return
	}
	for _, path := range run.Combined.Exports {
		fmt.Printf("\nAll results saved to %s\n", path)
	}
	fmt.Println("\nOVERALL BEST DEALS ACROSS ALL SEARCHES:")
	fmt.Println(run.Combined.Text)
}
