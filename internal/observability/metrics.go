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
	// Loop metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec
	LastCycle     *prometheus.GaugeVec

	// Reconciliation metrics
	ClaimsCreated   prometheus.Counter
	ClaimsConfirmed prometheus.Counter
	PaymentsIgnored *prometheus.CounterVec
	Refunds         *prometheus.CounterVec

	// Curation metrics
	VotesCast   *prometheus.CounterVec
	VotingPower prometheus.Gauge

	// Ledger metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCErrors      *prometheus.CounterVec
	Broadcasts     *prometheus.CounterVec

	// Sink metrics
	NotificationErrors *prometheus.CounterVec
	PatronEvents       *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "steem_patron_bot"
	}
	f := promauto.With(reg)

	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "cycles_total",
			Help:      "Total number of loop cycles by outcome",
		}, []string{"loop", "outcome"}),
		CycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "cycle_duration_seconds",
			Help:      "Loop cycle duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"loop"}),
		LastCycle: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "last_cycle_timestamp",
			Help:      "Unix timestamp of the last completed cycle",
		}, []string{"loop"}),

		ClaimsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "claims_created_total",
			Help:      "Total number of verification claims created",
		}),
		ClaimsConfirmed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "claims_confirmed_total",
			Help:      "Total number of verification claims confirmed",
		}),
		PaymentsIgnored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "payments_ignored_total",
			Help:      "Transfers seen but not matched, by reason",
		}, []string{"reason"}),
		Refunds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "refunds_total",
			Help:      "Refund broadcasts by status",
		}, []string{"status"}),

		VotesCast: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "curation",
			Name:      "votes_cast_total",
			Help:      "Votes cast by source",
		}, []string{"source"}),
		VotingPower: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "curation",
			Name:      "voting_power_percent",
			Help:      "Last observed voting power of the gating account",
		}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "steem",
			Name:      "rpc_call_latency_seconds",
			Help:      "Steem RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "steem",
			Name:      "rpc_errors_total",
			Help:      "Steem RPC calls that failed",
		}, []string{"method"}),
		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "steem",
			Name:      "broadcasts_total",
			Help:      "Transaction broadcasts by operation and status",
		}, []string{"op", "status"}),

		NotificationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "errors_total",
			Help:      "Failed chat notifications and role grants",
		}, []string{"kind"}),
		PatronEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "patron_events_total",
			Help:      "Patron membership events applied, by type",
		}, []string{"type"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// RecordCycle records a finished loop cycle.
func RecordCycle(loop, outcome string, durationSeconds float64, finishedUnix int64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(loop, outcome).Inc()
	DefaultMetrics.CycleDuration.WithLabelValues(loop).Observe(durationSeconds)
	DefaultMetrics.LastCycle.WithLabelValues(loop).Set(float64(finishedUnix))
}

// RecordClaimCreated increments the claims created counter.
func RecordClaimCreated() {
	DefaultMetrics.ClaimsCreated.Inc()
}

// RecordClaimConfirmed increments the claims confirmed counter.
func RecordClaimConfirmed() {
	DefaultMetrics.ClaimsConfirmed.Inc()
}

// RecordPaymentIgnored records a transfer that did not confirm a claim.
func RecordPaymentIgnored(reason string) {
	DefaultMetrics.PaymentsIgnored.WithLabelValues(reason).Inc()
}

// RecordRefund records a refund broadcast.
func RecordRefund(ok bool) {
	DefaultMetrics.Refunds.WithLabelValues(status(ok)).Inc()
}

// RecordVote records a cast vote.
func RecordVote(source string) {
	DefaultMetrics.VotesCast.WithLabelValues(source).Inc()
}

// UpdateVotingPower sets the voting power gauge.
func UpdateVotingPower(percent float64) {
	DefaultMetrics.VotingPower.Set(percent)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError records a failed RPC call.
func RecordRPCError(method string) {
	DefaultMetrics.RPCErrors.WithLabelValues(method).Inc()
}

// RecordBroadcast records a transaction broadcast.
func RecordBroadcast(op string, ok bool) {
	DefaultMetrics.Broadcasts.WithLabelValues(op, status(ok)).Inc()
}

// RecordNotificationError records a failed sink call.
func RecordNotificationError(kind string) {
	DefaultMetrics.NotificationErrors.WithLabelValues(kind).Inc()
}

// RecordPatronEvent records an applied membership event.
func RecordPatronEvent(eventType string) {
	DefaultMetrics.PatronEvents.WithLabelValues(eventType).Inc()
}
