package models

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationTotal counts engine operations by name and outcome kind
	operationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockroom_operation_total",
		Help: "Inventory engine operations by operation and result",
	}, []string{"operation", "result"})

	// operationDuration tracks operation latency including session acquisition
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockroom_operation_duration_seconds",
		Help:    "Inventory engine operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"operation"})

	// ledgerUnitsTotal sums units moved through the ledger
	ledgerUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockroom_ledger_units_total",
		Help: "Units appended to the ledger by direction (supply, offtake, trash)",
	}, []string{"direction"})

	// ledgerDriftItems is the item count with cur_amount != ledger sum at the last reconcile
	ledgerDriftItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockroom_ledger_drift_items",
		Help: "Items whose cached amount disagreed with the ledger at the last reconcile",
	})
)

func observeOperation(operation string, start time.Time, err error) {
	operationTotal.WithLabelValues(operation, KindLabel(err)).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
