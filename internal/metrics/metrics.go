package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the pipeline collectors. A nil *Metrics is valid and
// records nothing, so components can be built without a registry.
type Metrics struct {
	crawlPages       prometheus.Counter
	fetchFailures    prometheus.Counter
	indexedChunks    prometheus.Gauge
	queryLatency     *prometheus.HistogramVec
	candidates       prometheus.Histogram
	keptChunks       prometheus.Histogram
	ltmHits          prometheus.Counter
	historyConflicts prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		crawlPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siterag_crawl_pages_total",
			Help: "Pages fetched successfully by the crawler",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siterag_crawl_fetch_failures_total",
			Help: "Page fetches that failed and were skipped",
		}),
		indexedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siterag_indexed_chunks",
			Help: "Chunks in the current index generation",
		}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siterag_query_latency_ms",
			Help:    "End-to-end query latency in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"status"}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "siterag_query_candidates",
			Help:    "Candidates returned by the vector store per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		keptChunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "siterag_query_kept_chunks",
			Help:    "Chunks kept after reranking per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		ltmHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siterag_long_term_memory_hits_total",
			Help: "Queries that recalled a long-term memory entry",
		}),
		historyConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siterag_history_write_conflicts_total",
			Help: "Optimistic history writes retried after a concurrent update",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.crawlPages, m.fetchFailures, m.indexedChunks, m.queryLatency,
			m.candidates, m.keptChunks, m.ltmHits, m.historyConflicts)
	}
	return m
}

func (m *Metrics) PageCrawled() {
	if m == nil {
		return
	}
	m.crawlPages.Inc()
}

func (m *Metrics) FetchFailed() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

func (m *Metrics) SetIndexed(n int) {
	if m == nil {
		return
	}
	m.indexedChunks.Set(float64(n))
}

// ObserveQuery records latency since start under the given status label.
func (m *Metrics) ObserveQuery(status string, start time.Time) {
	if m == nil {
		return
	}
	m.queryLatency.WithLabelValues(status).Observe(float64(time.Since(start).Milliseconds()))
}

func (m *Metrics) ObserveRetrieval(candidates, kept int) {
	if m == nil {
		return
	}
	m.candidates.Observe(float64(candidates))
	m.keptChunks.Observe(float64(kept))
}

func (m *Metrics) LongTermHit() {
	if m == nil {
		return
	}
	m.ltmHits.Inc()
}

func (m *Metrics) HistoryConflict() {
	if m == nil {
		return
	}
	m.historyConflicts.Inc()
}
