package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Push payment lifecycle metrics
	transactionsInitiatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpesa_transactions_initiated_total",
		Help: "Push payments accepted by the gateway and recorded as pending",
	})

	transactionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_transaction_transitions_total",
		Help: "Transactions leaving pending, by terminal state",
	}, []string{
		"state", // completed, failed, payment_received_order_failed
	})

	paymentAmountKES = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_payment_amount_kes_total",
		Help: "Confirmed payment amount in KES (for revenue tracking)",
	}, []string{
		"state",
	})

	liveTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mpesa_live_transactions",
		Help: "Transactions recorded by this process and not yet evicted",
	})

	// Reconciliation anomalies
	reconciliationMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpesa_reconciliation_misses_total",
		Help: "Confirmations received for an unknown checkout request id",
	})

	duplicateConfirmationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpesa_duplicate_confirmations_total",
		Help: "Confirmations ignored because the transaction was already claimed or terminal",
	})

	transactionsEvictedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_transactions_evicted_total",
		Help: "Transactions removed by the retention sweep",
	}, []string{
		"state",
	})

	statusFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_status_fallback_total",
		Help: "Active gateway status queries made for pending transactions",
	}, []string{
		"outcome", // pending, processing, failed, query_error
	})

	// Order fulfillment duration (confirmation to order created or failed)
	fulfillmentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mpesa_fulfillment_duration_seconds",
		Help:    "Time spent creating the commerce order for a confirmed payment",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"outcome", // created, failed
	})

	// Outbound calls to Daraja and Shopify
	externalCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "external_call_duration_seconds",
		Help:    "Latency of outbound API calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"service",   // daraja, shopify
		"operation", // token, stk_push, stk_query, create_order, ...
		"outcome",   // ok, rejected, error
	})
)

// RecordTransactionInitiated records a pending transaction
func RecordTransactionInitiated() {
	transactionsInitiatedTotal.Inc()
	liveTransactions.Inc()
}

// RecordTransition records a pending transaction reaching a terminal state.
// Only money-received states count toward revenue.
func RecordTransition(state string, amount int64, moneyReceived bool) {
	transactionTransitionsTotal.WithLabelValues(state).Inc()
	if moneyReceived {
		paymentAmountKES.WithLabelValues(state).Add(float64(amount))
	}
}

// RecordReconciliationMiss records a confirmation with no matching transaction
func RecordReconciliationMiss() {
	reconciliationMissesTotal.Inc()
}

// RecordDuplicateConfirmation records an ignored redelivery
func RecordDuplicateConfirmation() {
	duplicateConfirmationsTotal.Inc()
}

// RecordEviction records a transaction removed by the retention sweep
func RecordEviction(state string) {
	transactionsEvictedTotal.WithLabelValues(state).Inc()
	liveTransactions.Dec()
}

// RecordStatusFallback records the outcome of a live status query
func RecordStatusFallback(outcome string) {
	statusFallbackTotal.WithLabelValues(outcome).Inc()
}

// RecordFulfillment records how long order creation took
func RecordFulfillment(outcome string, duration time.Duration) {
	fulfillmentDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordExternalCall records an outbound API call
func RecordExternalCall(service, operation, outcome string, duration time.Duration) {
	externalCallDuration.WithLabelValues(service, operation, outcome).Observe(duration.Seconds())
}
