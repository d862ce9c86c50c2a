/**
 * @description
 * Prometheus instrumentation for the payment service. Collectors track order
 * lifecycle throughput, rejected operations by reason, and settlement latency.
 * The registry is exposed on GET /metrics by the router.
 */

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PaymentMetrics bundles the collectors the service records against.
type PaymentMetrics struct {
	OrdersCreated     prometheus.Counter
	OrdersPaid        prometheus.Counter
	OrdersRefunded    prometheus.Counter
	OperationFailures *prometheus.CounterVec
	SettlementSeconds *prometheus.HistogramVec
}

// NewPaymentMetrics registers and returns the service collectors.
func NewPaymentMetrics() *PaymentMetrics {
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "payment",
		Name:      "orders_created_total",
		Help:      "Total number of orders created.",
	})
	paid := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "payment",
		Name:      "orders_paid_total",
		Help:      "Total number of orders settled as paid.",
	})
	refunded := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "payment",
		Name:      "orders_refunded_total",
		Help:      "Total number of orders refunded.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payment",
		Name:      "operation_failures_total",
		Help:      "Rejected or failed operations by operation and reason.",
	}, []string{"operation", "reason"})
	settlement := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "payment",
		Name:      "settlement_duration_seconds",
		Help:      "Wall time of atomic settlement transactions.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation"})

	prometheus.MustRegister(created, paid, refunded, failures, settlement)
	return &PaymentMetrics{
		OrdersCreated:     created,
		OrdersPaid:        paid,
		OrdersRefunded:    refunded,
		OperationFailures: failures,
		SettlementSeconds: settlement,
	}
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
