package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the crawl pipeline.
type Metrics struct {
	registry *prometheus.Registry

	SitemapsFetched *prometheus.CounterVec
	PagesFetched    *prometheus.CounterVec
	RecordsEmitted  *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SitemapsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_sitemaps_fetched_total",
			Help: "The total number of sitemap documents fetched",
		}, []string{"site"}),
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_fetched_total",
			Help: "The total number of article pages fetched",
		}, []string{"site"}),
		RecordsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_records_emitted_total",
			Help: "The total number of article records delivered to the sink",
		}, []string{"site"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"site", "type"}), // e.g. 'sitemap_fetch', 'page_fetch', 'page_parse', 'sink'
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_fetch_duration_seconds",
			Help:    "Wall time of individual fetches",
			Buckets: prometheus.DefBuckets,
		}, []string{"site"}),
	}
}

// Registry exposes the metrics registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) IncSitemapFetched(site string) { m.SitemapsFetched.WithLabelValues(site).Inc() }
func (m *Metrics) IncPageFetched(site string)    { m.PagesFetched.WithLabelValues(site).Inc() }
func (m *Metrics) IncRecordEmitted(site string)  { m.RecordsEmitted.WithLabelValues(site).Inc() }

func (m *Metrics) IncError(site, errType string) {
	m.ErrorsTotal.WithLabelValues(site, errType).Inc()
}

func (m *Metrics) ObserveFetch(site string, seconds float64) {
	m.FetchDuration.WithLabelValues(site).Observe(seconds)
}
