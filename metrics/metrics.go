package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the crawl counters. Each instance has its own registry so
// several crawls (and tests) never collide. All methods are safe on a nil
// receiver, which turns them into no-ops.
type Metrics struct {
	Registry *prometheus.Registry

	PagesTotal    *prometheus.CounterVec
	RecordsTotal  *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	RetriesTotal  *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		PagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "List pages fetched",
		}, []string{"site"}),
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Records by outcome: emitted, duplicate, partial, failed, dropped",
		}, []string{"site", "outcome"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_fetch_errors_total",
			Help: "Fetch errors by retry class",
		}, []string{"site", "class"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Retried requests",
		}, []string{"site"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Wall time per fetch including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"site", "kind"}),
	}
}

func (m *Metrics) IncPages(site string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(site).Inc()
}

func (m *Metrics) IncRecords(site, outcome string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(site, outcome).Inc()
}

func (m *Metrics) IncErrors(site, class string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(site, class).Inc()
}

func (m *Metrics) IncRetries(site string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(site).Inc()
}

func (m *Metrics) ObserveFetch(site, kind string, took time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(site, kind).Observe(took.Seconds())
}

// WriteTextfile dumps the registry in the text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
