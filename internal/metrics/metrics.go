// Package metrics содержит prometheus-метрики сервиса предзаказов.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrderCreateDuration отслеживает длительность создания заказа.
	OrderCreateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "preorder_order_create_duration_seconds",
			Help:    "Duration of order creation requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"result"},
	)

	// StockReservationFailures считает отказы резервирования по нехватке товара.
	StockReservationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preorder_stock_reservation_failures_total",
			Help: "Number of reservations rejected due to insufficient stock",
		},
	)

	// Reconciliations считает сверки платежей по исходу.
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preorder_payment_reconciliations_total",
			Help: "Number of payment reconciliations by outcome",
		},
		[]string{"status", "outcome"}, // outcome: applied or noop
	)

	// LifecycleTransitions считает переходы статусов кампаний и этапов.
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preorder_lifecycle_transitions_total",
			Help: "Number of campaign and stage status transitions",
		},
		[]string{"entity", "to"},
	)
)

// RecordOrderCreate записывает длительность создания заказа с его исходом.
func RecordOrderCreate(result string, seconds float64) {
	OrderCreateDuration.WithLabelValues(result).Observe(seconds)
}
