// Package metrics exposes escrow operation metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crowdpay"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	operations      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	settledAmount   prometheus.Counter
	archiveFailures prometheus.Counter
}

// New registers the escrow collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Escrow operations by operation and result kind.",
		}, []string{"operation", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Escrow operation latency, including the store transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		settledAmount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settled_amount_total",
			Help:      "Sum of all settlement payouts.",
		}),
		archiveFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_failures_total",
			Help:      "Settled groups that could not be archived.",
		}),
	}
}

// ObserveOperation counts one finished operation.
func (m *Metrics) ObserveOperation(operation, result string, elapsed time.Duration) {
	m.operations.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// AddSettled adds a settlement payout to the running total.
func (m *Metrics) AddSettled(amount uint64) {
	m.settledAmount.Add(float64(amount))
}

// ArchiveFailed counts an archive failure.
func (m *Metrics) ArchiveFailed() {
	m.archiveFailures.Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
