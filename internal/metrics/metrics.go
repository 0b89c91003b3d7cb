// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RPCRequests counts RPCs by procedure and result code.
	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "divvy",
		Name:      "rpc_requests_total",
		Help:      "RPC requests by procedure and connect code (ok for success).",
	}, []string{"procedure", "code"})

	// RPCDuration observes RPC latency by procedure.
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "divvy",
		Name:      "rpc_duration_seconds",
		Help:      "RPC handler latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"procedure"})

	// LedgerOps counts ledger mutations by kind (expense/settlement) and
	// direction (apply/reverse/replace).
	LedgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "divvy",
		Name:      "ledger_operations_total",
		Help:      "Committed ledger mutations.",
	}, []string{"kind", "direction"})

	// LedgerConflicts counts compare-and-swap retries.
	LedgerConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "divvy",
		Name:      "ledger_conflicts_total",
		Help:      "Optimistic-concurrency conflicts that triggered a retry.",
	})

	// IntegrityWarnings counts balance snapshots whose sum was non-zero
	// beyond the planner epsilon.
	IntegrityWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "divvy",
		Name:      "integrity_warnings_total",
		Help:      "Imbalanced group snapshots observed during planning.",
	})

	// PlanTransfers observes how many transfers settlement plans contain.
	PlanTransfers = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "divvy",
		Name:      "plan_transfers",
		Help:      "Number of transfers per computed settlement plan.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
