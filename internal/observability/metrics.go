// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Fetch metrics
	TransfersFetched  prometheus.Counter
	ReceiptsFetched   prometheus.Counter
	FetchErrors       *prometheus.CounterVec
	TransferPagesRead prometheus.Counter

	// Pricing metrics
	PriceLookups      *prometheus.CounterVec
	PriceCacheSize    prometheus.Gauge
	PriceFallbacks    prometheus.Counter
	PriceLookupMisses prometheus.Counter

	// Run metrics
	WalletsProcessed    prometheus.Counter
	ErrorRecords        prometheus.Counter
	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	WalletBuildDuration prometheus.Histogram

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wallet_feature_lab"
	}

	return &Metrics{
		// Fetch metrics
		TransfersFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "transfers_fetched_total",
			Help:      "Total number of asset transfers fetched",
		}),
		ReceiptsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "receipts_fetched_total",
			Help:      "Total number of transaction receipts fetched",
		}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Total number of fetch errors by operation",
		}, []string{"operation"}),
		TransferPagesRead: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "transfer_pages_read_total",
			Help:      "Total number of transfer result pages read",
		}),

		// Pricing metrics
		PriceLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "lookups_total",
			Help:      "Total number of price lookups by outcome",
		}, []string{"outcome"}),
		PriceCacheSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "cache_size",
			Help:      "Number of cached (symbol, day) price entries",
		}),
		PriceFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "fallbacks_total",
			Help:      "Total number of symbol lookups that fell back to ETH",
		}),
		PriceLookupMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "misses_total",
			Help:      "Total number of price lookups with no usable quote",
		}),

		// Run metrics
		WalletsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "wallets_processed_total",
			Help:      "Total number of wallets processed",
		}),
		ErrorRecords: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "error_records_total",
			Help:      "Total number of wallet records that carry an error",
		}),
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Total number of feature runs by status",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Feature run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		WalletBuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "wallet_build_duration_seconds",
			Help:      "Per-wallet feature build duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful feature run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordWalletProcessed increments the wallets processed counter.
func RecordWalletProcessed() {
	DefaultMetrics.WalletsProcessed.Inc()
}

// RecordErrorRecord increments the error records counter.
func RecordErrorRecord() {
	DefaultMetrics.ErrorRecords.Inc()
}

// RecordRun records one feature run with its duration.
func RecordRun(status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RunDuration.Observe(durationSeconds)
}

// RecordFetchError increments the fetch error counter for an operation.
func RecordFetchError(operation string) {
	DefaultMetrics.FetchErrors.WithLabelValues(operation).Inc()
}

// RecordPriceLookup records a price lookup outcome (hit, source, fallback, miss).
func RecordPriceLookup(outcome string) {
	DefaultMetrics.PriceLookups.WithLabelValues(outcome).Inc()
	switch outcome {
	case "fallback":
		DefaultMetrics.PriceFallbacks.Inc()
	case "miss":
		DefaultMetrics.PriceLookupMisses.Inc()
	}
}

// RecordRPCLatency records RPC call latency for a method.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records a database query with duration and error status.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
