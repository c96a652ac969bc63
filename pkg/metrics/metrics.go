package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Grove/tree metrics
	TreesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "acorndb_trees_total",
			Help: "Total number of Tree instances registered with the grove",
		},
	)

	NutsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorndb_nuts_total",
			Help: "Current cache size per registered tree, by kind and name",
		},
		[]string{"kind", "name"},
	)

	IndexesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorndb_indexes_total",
			Help: "Number of secondary indexes registered per tree",
		},
		[]string{"kind", "name"},
	)

	DedupCacheSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorndb_dedup_cache_size",
			Help: "Current occupancy of the replication dedup cache per tree",
		},
		[]string{"kind", "name"},
	)

	SubscribersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorndb_subscribers_total",
			Help: "Number of live Subscribe callbacks registered per tree",
		},
		[]string{"kind", "name"},
	)

	SinksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorndb_sinks_total",
			Help: "Number of leaf sinks entangled with per tree",
		},
		[]string{"kind", "name"},
	)

	// Trunk operation metrics
	TrunkOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorndb_trunk_operations_total",
			Help: "Total number of Trunk operations by op and status",
		},
		[]string{"op", "status"},
	)

	TrunkOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acorndb_trunk_operation_duration_seconds",
			Help:    "Trunk operation duration in seconds, by op",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	TrunkPendingWrites = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorndb_trunk_pending_writes",
			Help: "Number of writes currently buffered awaiting flush, by trunk type",
		},
		[]string{"trunk_type"},
	)

	TrunkFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "acorndb_trunk_flush_duration_seconds",
			Help:    "Time taken to flush a batch of pending writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TrunkFlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_trunk_flushes_total",
			Help: "Total number of trunk flush cycles completed",
		},
	)

	// Conflict resolution metrics
	SquabblesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorndb_squabbles_total",
			Help: "Total number of conflict resolutions by direction and outcome",
		},
		[]string{"direction", "outcome"},
	)

	// Replication ("leaf gossip") metrics
	LeavesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_leaves_sent_total",
			Help: "Total number of leaves broadcast to sinks",
		},
	)

	LeavesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorndb_leaves_received_total",
			Help: "Total number of leaves received by outcome (applied, deduped, dropped, failed)",
		},
		[]string{"outcome"},
	)

	LeavesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_leaves_dropped_total",
			Help: "Total number of leaves dropped because a sink's buffer was full",
		},
	)

	// Ledger (policy governance) metrics
	PolicyEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorndb_policy_evaluations_total",
			Help: "Total number of policy evaluations by outcome (allow, deny)",
		},
		[]string{"outcome"},
	)

	PolicyViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorndb_policy_violations_total",
			Help: "Total number of policy violations by policy name",
		},
		[]string{"policy"},
	)

	LedgerChainIntegrityFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_ledger_chain_integrity_failures_total",
			Help: "Total number of ledger hash chain verification failures",
		},
	)

	// Composed trunk / circuit breaker metrics
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorndb_circuit_breaker_state",
			Help: "Current circuit breaker state by name (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	TierMigrationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_tier_migrations_total",
			Help: "Total number of documents migrated from a hot tier to a cold tier",
		},
	)
)

func init() {
	prometheus.MustRegister(TreesTotal)
	prometheus.MustRegister(NutsTotal)
	prometheus.MustRegister(IndexesTotal)
	prometheus.MustRegister(DedupCacheSize)
	prometheus.MustRegister(SubscribersTotal)
	prometheus.MustRegister(SinksTotal)

	prometheus.MustRegister(TrunkOpsTotal)
	prometheus.MustRegister(TrunkOpDuration)
	prometheus.MustRegister(TrunkPendingWrites)
	prometheus.MustRegister(TrunkFlushDuration)
	prometheus.MustRegister(TrunkFlushesTotal)

	prometheus.MustRegister(SquabblesTotal)

	prometheus.MustRegister(LeavesSentTotal)
	prometheus.MustRegister(LeavesReceivedTotal)
	prometheus.MustRegister(LeavesDroppedTotal)

	prometheus.MustRegister(PolicyEvaluationsTotal)
	prometheus.MustRegister(PolicyViolationsTotal)
	prometheus.MustRegister(LedgerChainIntegrityFailures)

	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(TierMigrationsTotal)
}

// Handler returns the metrics HTTP handler: Prometheus text exposition
// by default, or the OpenTelemetry-shaped JSON document when the
// request asks for ?format=json.
func Handler() http.Handler {
	prom := promhttp.Handler()
	jsonHandler := JSONHandler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "json" {
			jsonHandler(w, r)
			return
		}
		prom.ServeHTTP(w, r)
	})
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

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
