package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "typhoonlens"

var (
	AnalysisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_requests_total",
			Help:      "Total number of analysis requests, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	AnalysisLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_latency_seconds",
			Help:      "Time spent answering an analysis request (seconds).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	ReportCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_total",
			Help:      "Report cache lookups, labeled by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	AnalyzerAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyzer_attempts_total",
			Help:      "Calls to the analyzer provider, labeled by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter.",
		},
		[]string{"scope", "operation"},
	)
)

func init() {
	prometheus.MustRegister(
		AnalysisRequestsTotal,
		AnalysisLatencySeconds,
		ReportCacheTotal,
		AnalyzerAttemptsTotal,
		RateLimitHitsTotal,
	)
}
