package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry          *prometheus.Registry
	PagesTotal        *prometheus.CounterVec
	FetchDuration     prometheus.Histogram
	ExtractDuration   prometheus.Histogram
	ItemsTotal        prometheus.Counter
	ProductsTotal     prometheus.Counter
	RejectionsTotal   *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	UnitDuration      prometheus.Histogram
	FragmentCharsSeen prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_pages_total",
			Help: "Result pages fetched, by site and engine.",
		},
		[]string{"site", "engine"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealscout_fetch_duration_seconds",
			Help:    "Time to fetch and render one result page.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 45, 90, 180},
		},
	)
	extractDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealscout_extract_duration_seconds",
			Help:    "Extraction service latency per fragment.",
			Buckets: prometheus.DefBuckets,
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dealscout_items_extracted_total",
			Help: "Raw items returned by the extraction service.",
		},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dealscout_products_total",
			Help: "Items that passed validation.",
		},
	)
	rejections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_rejections_total",
			Help: "Items rejected by validation, by field.",
		},
		[]string{"field"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealscout_errors_total",
			Help: "Contained failures by stage and error code.",
		},
		[]string{"stage", "code"},
	)
	unitDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealscout_unit_duration_seconds",
			Help:    "Wall time of one (site, category) unit.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)
	fragmentChars := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealscout_fragment_chars",
			Help:    "Size of fragments handed to the extraction service.",
			Buckets: prometheus.LinearBuckets(2500, 2500, 8),
		},
	)

	registry.MustRegister(pages, fetchDuration, extractDuration, items, products,
		rejections, errorsTotal, unitDuration, fragmentChars)

	return &Metrics{
		Registry:          registry,
		PagesTotal:        pages,
		FetchDuration:     fetchDuration,
		ExtractDuration:   extractDuration,
		ItemsTotal:        items,
		ProductsTotal:     products,
		RejectionsTotal:   rejections,
		ErrorsTotal:       errorsTotal,
		UnitDuration:      unitDuration,
		FragmentCharsSeen: fragmentChars,
	}
}

func (m *Metrics) observePage(site, engine string, d time.Duration) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(site, engine).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) observeExtract(d time.Duration, items, chars int) {
	if m == nil {
		return
	}
	m.ExtractDuration.Observe(d.Seconds())
	m.ItemsTotal.Add(float64(items))
	m.FragmentCharsSeen.Observe(float64(chars))
}

func (m *Metrics) addProducts(n int) {
	if m == nil {
		return
	}
	m.ProductsTotal.Add(float64(n))
}

func (m *Metrics) incRejection(field string) {
	if m == nil {
		return
	}
	if field == "" {
		field = "item"
	}
	m.RejectionsTotal.WithLabelValues(field).Inc()
}

func (m *Metrics) incError(stage, code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage, code).Inc()
}

func (m *Metrics) observeUnit(d time.Duration) {
	if m == nil {
		return
	}
	m.UnitDuration.Observe(d.Seconds())
}
