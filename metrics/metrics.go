package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "loanengine_"

	resultSuccess  = "success"
	resultError    = "error"
	resultRejected = "rejected"

	cacheHit  = "hit"
	cacheMiss = "miss"
)

var (
	registerOnce sync.Once

	impactTotal   *prometheus.CounterVec
	impactLatency *prometheus.HistogramVec

	validationFailures *prometheus.CounterVec

	projectionTotal   *prometheus.CounterVec
	projectionLatency *prometheus.HistogramVec

	commitTotal *prometheus.CounterVec

	waterfallTotal   *prometheus.CounterVec
	waterfallLatency *prometheus.HistogramVec
	waterfallSurplus prometheus.Histogram

	cacheEvents *prometheus.CounterVec

	reversionTotal *prometheus.CounterVec
)

// Init registers engine metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		impactTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "impact_calculations_total",
				Help: "Total impact calculations by modification type and result",
			},
			[]string{"type", "result"},
		)
		impactLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "impact_latency_seconds",
				Help:    "Impact calculation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type", "result"},
		)

		validationFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "validation_failures_total",
				Help: "Total modification validation failures by type",
			},
			[]string{"type"},
		)

		projectionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "restructure_projections_total",
				Help: "Total multi-modification projections by result",
			},
			[]string{"result"},
		)
		projectionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "restructure_projection_latency_seconds",
				Help:    "Multi-modification projection latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		commitTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commits_total",
				Help: "Total modification package commits by result",
			},
			[]string{"result"},
		)

		waterfallTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "waterfall_allocations_total",
				Help: "Total payment waterfall allocations by result",
			},
			[]string{"result"},
		)
		waterfallLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "waterfall_latency_seconds",
				Help:    "Payment waterfall latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		waterfallSurplus = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "waterfall_surplus_dollars",
				Help:    "Unallocated surplus left after the waterfall",
				Buckets: []float64{0, 1, 10, 100, 1000, 10000},
			},
		)

		cacheEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "impact_cache_events_total",
				Help: "Impact cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		reversionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reversions_total",
				Help: "Total automatic reversions by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			impactTotal,
			impactLatency,
			validationFailures,
			projectionTotal,
			projectionLatency,
			commitTotal,
			waterfallTotal,
			waterfallLatency,
			waterfallSurplus,
			cacheEvents,
			reversionTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveImpact records one impact calculation.
func ObserveImpact(modType, result string, duration time.Duration) {
	if modType == "" {
		modType = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if impactTotal != nil {
		impactTotal.WithLabelValues(modType, result).Inc()
	}
	if impactLatency != nil {
		impactLatency.WithLabelValues(modType, result).Observe(duration.Seconds())
	}
}

// IncValidationFailure increments the failure counter for a type.
func IncValidationFailure(modType string) {
	if modType == "" {
		modType = "unknown"
	}
	if validationFailures != nil {
		validationFailures.WithLabelValues(modType).Inc()
	}
}

// ObserveProjection records one multi-modification projection.
func ObserveProjection(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if projectionTotal != nil {
		projectionTotal.WithLabelValues(result).Inc()
	}
	if projectionLatency != nil {
		projectionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncCommit increments the commit counter.
func IncCommit(result string) {
	if result == "" {
		result = resultSuccess
	}
	if commitTotal != nil {
		commitTotal.WithLabelValues(result).Inc()
	}
}

// ObserveWaterfall records one waterfall allocation and its surplus.
func ObserveWaterfall(result string, surplus float64, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if waterfallTotal != nil {
		waterfallTotal.WithLabelValues(result).Inc()
	}
	if waterfallLatency != nil {
		waterfallLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if waterfallSurplus != nil && result == resultSuccess && surplus >= 0 {
		waterfallSurplus.Observe(surplus)
	}
}

// IncCacheHit and IncCacheMiss track impact cache effectiveness.
func IncCacheHit() {
	if cacheEvents != nil {
		cacheEvents.WithLabelValues(cacheHit).Inc()
	}
}

func IncCacheMiss() {
	if cacheEvents != nil {
		cacheEvents.WithLabelValues(cacheMiss).Inc()
	}
}

// IncReversion increments the automatic reversion counter.
func IncReversion(result string) {
	if result == "" {
		result = resultSuccess
	}
	if reversionTotal != nil {
		reversionTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultRejected = resultRejected
)
