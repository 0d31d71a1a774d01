package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheStats is the part of the report cache read at scrape time.
type CacheStats interface {
	Count(ctx context.Context) (int64, error)
	Health(ctx context.Context) error
}

type cacheCollector struct {
	stats    CacheStats
	provider string
	logger   *slog.Logger

	entriesDesc *prometheus.Desc
	upDesc      *prometheus.Desc
}

func newCacheCollector(stats CacheStats, provider string, logger *slog.Logger) *cacheCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &cacheCollector{
		stats:    stats,
		provider: provider,
		logger:   logger,
		entriesDesc: prometheus.NewDesc(
			"typhoonlens_report_cache_entries",
			"Reports currently held by the cache.",
			[]string{"provider"},
			nil,
		),
		upDesc: prometheus.NewDesc(
			"typhoonlens_report_cache_up",
			"Whether the report cache backend answered its health check.",
			[]string{"provider"},
			nil,
		),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entriesDesc
	ch <- c.upDesc
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	if c.stats == nil {
		return
	}

	// bounded so scrapes do not hang on a slow backend
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.stats.Health(ctx); err != nil {
		c.logger.Warn("prometheus cache collector health failed", "provider", c.provider, "err", err)
		emitGauge(ch, c.upDesc, 0, c.provider)
		return
	}
	emitGauge(ch, c.upDesc, 1, c.provider)

	n, err := c.stats.Count(ctx)
	if err != nil {
		c.logger.Warn("prometheus cache collector count failed", "provider", c.provider, "err", err)
		return
	}
	emitGauge(ch, c.entriesDesc, float64(n), c.provider)
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerCacheCollectorOnce sync.Once

func RegisterCacheCollector(stats CacheStats, provider string, logger *slog.Logger) {
	registerCacheCollectorOnce.Do(func() {
		prometheus.MustRegister(newCacheCollector(stats, provider, logger))
	})
}
