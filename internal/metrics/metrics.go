package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CartOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcart_cart_operations_total",
			Help: "Number of cart operations by operation and result kind",
		},
		[]string{"operation", "result"},
	)

	CartOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventcart_cart_operation_duration_seconds",
			Help:    "Time taken by cart operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	Settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcart_settlements_total",
			Help: "Number of applied checkout settlements by outcome",
		},
		[]string{"outcome"},
	)

	ExpiredCheckouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcart_expired_checkouts_total",
			Help: "Number of checkouts expired by the reaper",
		},
	)

	OrphanedPayments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcart_orphaned_payments_total",
			Help: "Approved payments that arrived after their cart was canceled",
		},
	)

	EmailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcart_emails_total",
			Help: "Number of notification emails by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call twice.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(CartOperations, CartOperationDuration, Settlements, ExpiredCheckouts, OrphanedPayments, EmailsSent)
	})
}

// ObserveOperation records one finished cart operation.
func ObserveOperation(operation, result string, started time.Time) {
	CartOperations.WithLabelValues(operation, result).Inc()
	CartOperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
