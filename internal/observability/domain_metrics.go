package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	askRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscout_ask_requests_total",
			Help: "Total number of ask pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)
	askDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlscout_ask_duration_seconds",
			Help:    "End-to-end ask pipeline latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscout_llm_calls_total",
			Help: "Total number of hosted model calls by kind and status.",
		},
		[]string{"kind", "status"},
	)
	llmCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlscout_llm_call_latency_ms",
			Help:    "Hosted model call latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"kind"},
	)
	nounMatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlscout_noun_matches_total",
			Help: "Total number of proper-noun matches returned by retrieval.",
		},
	)
	nounIndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlscout_noun_index_size",
			Help: "Current number of values in the proper-noun index.",
		},
	)
	sqlRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscout_sql_rejections_total",
			Help: "Total number of generated statements rejected before execution.",
		},
		[]string{"reason"},
	)
	sqlRepairsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlscout_sql_repairs_total",
			Help: "Total number of repair round-trips after a failed execution.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		askRequestsTotal,
		askDurationSeconds,
		llmCallsTotal,
		llmCallLatencyMs,
		nounMatchesTotal,
		nounIndexSize,
		sqlRejectionsTotal,
		sqlRepairsTotal,
	)
}

func ObserveAsk(outcome string, elapsed time.Duration) {
	askRequestsTotal.WithLabelValues(outcome).Inc()
	askDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveLLMCall(kind, status string, elapsed time.Duration) {
	llmCallsTotal.WithLabelValues(kind, status).Inc()
	llmCallLatencyMs.WithLabelValues(kind).Observe(float64(elapsed.Milliseconds()))
}

func AddNounMatches(count int) {
	if count > 0 {
		nounMatchesTotal.Add(float64(count))
	}
}

func SetNounIndexSize(size int) {
	if size < 0 {
		size = 0
	}
	nounIndexSize.Set(float64(size))
}

func IncrementSQLRejection(reason string) {
	sqlRejectionsTotal.WithLabelValues(reason).Inc()
}

func IncrementSQLRepair() {
	sqlRepairsTotal.Inc()
}
