// Package metrics exposes Prometheus collectors shared by the fetcher,
// the article pipeline and the page orchestrator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	PagesTotal         *prometheus.CounterVec
	ArticlesFoundTotal prometheus.Counter
	ArticlesSavedTotal prometheus.Counter
	CardsSkippedTotal  prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Listing pages attempted, by outcome.",
		},
		[]string{"outcome"},
	)
	found := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_articles_found_total",
			Help: "Article links matching the category filter.",
		},
	)
	saved := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_articles_saved_total",
			Help: "Articles written to disk.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_cards_skipped_total",
			Help: "Malformed listing cards skipped during link extraction.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, pages, found, saved, skipped, errorsTotal)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		PagesTotal:         pages,
		ArticlesFoundTotal: found,
		ArticlesSavedTotal: saved,
		CardsSkippedTotal:  skipped,
		ErrorsTotal:        errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPage counts a listing page by outcome ("ok" or "failed").
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

// AddFound adds n matching article links.
func (m *Metrics) AddFound(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ArticlesFoundTotal.Add(float64(n))
}

// IncSaved increments the saved articles counter.
func (m *Metrics) IncSaved() {
	if m == nil {
		return
	}
	m.ArticlesSavedTotal.Inc()
}

// AddSkippedCards adds n skipped listing cards.
func (m *Metrics) AddSkippedCards(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CardsSkippedTotal.Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
