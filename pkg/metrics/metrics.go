package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerd_requests_total",
			Help: "Total number of dispatched requests by method and status",
		},
		[]string{"method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerd_request_duration_seconds",
			Help:    "Request dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Context/capability pool metrics.
	ChildContextsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledgerd_child_contexts_in_use",
			Help: "Number of child context pool slots currently allocated",
		},
	)

	OutOfChildInstancesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerd_out_of_child_instances_total",
			Help: "Total number of child_context_create calls that failed with out_of_child_instances",
		},
	)

	// Canonization metrics.
	BlockMakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledgerd_block_make_duration_seconds",
			Help:    "Time taken to canonize one block, including all child transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	BlocksCanonizedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerd_blocks_canonized_total",
			Help: "Total number of blocks successfully canonized",
		},
	)

	BlockMakeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerd_block_make_failures_total",
			Help: "Total number of block_make calls that failed, by status",
		},
		[]string{"status"},
	)

	ChainHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledgerd_chain_height",
			Help: "Height of the most recently canonized block",
		},
	)

	// Process-queue metrics.
	PQDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledgerd_pq_depth",
			Help: "Approximate number of transactions awaiting canonization",
		},
	)

	TxnSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerd_txn_submitted_total",
			Help: "Total number of transactions submitted to the process queue",
		},
	)

	TxnDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerd_txn_dropped_total",
			Help: "Total number of transactions dropped from the process queue",
		},
	)

	// Storage metrics.
	StorageTxnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerd_storage_txn_duration_seconds",
			Help:    "Storage transaction duration in seconds, by writable/read-only",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	StorageTxnFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerd_storage_txn_failures_total",
			Help: "Total number of storage transaction begin/commit failures",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ChildContextsInUse)
	prometheus.MustRegister(OutOfChildInstancesTotal)
	prometheus.MustRegister(BlockMakeDuration)
	prometheus.MustRegister(BlocksCanonizedTotal)
	prometheus.MustRegister(BlockMakeFailuresTotal)
	prometheus.MustRegister(ChainHeight)
	prometheus.MustRegister(PQDepth)
	prometheus.MustRegister(TxnSubmittedTotal)
	prometheus.MustRegister(TxnDroppedTotal)
	prometheus.MustRegister(StorageTxnDuration)
	prometheus.MustRegister(StorageTxnFailuresTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
