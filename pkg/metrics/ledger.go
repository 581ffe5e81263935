package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the ledger counters.
const (
	OutcomeOK           = "ok"
	OutcomeInsufficient = "insufficient_stock"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)

// LedgerMetrics records stock movements and the retries they needed.
type LedgerMetrics struct {
	transfers        *prometheus.CounterVec
	adjustments      *prometheus.CounterVec
	retries          *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on reg. A nil registerer
// yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_transfers_total",
		Help: "Stock transfers between owners by outcome.",
	}, []string{"outcome"})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_adjustments_total",
		Help: "Direct balance adjustments by outcome.",
	}, []string{"outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_tx_retries_total",
		Help: "Transactions replayed after a concurrent update.",
	}, []string{"operation"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockledger_transfer_duration_seconds",
		Help:    "Latency of committed and failed stock transfers.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(transfers, adjustments, retries, duration)
	return &LedgerMetrics{
		transfers:        transfers,
		adjustments:      adjustments,
		retries:          retries,
		transferDuration: duration,
	}
}

// ObserveTransfer counts a transfer and records how long it took.
func (m *LedgerMetrics) ObserveTransfer(outcome string, elapsed time.Duration) {
	if m == nil || m.transfers == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	m.transfers.WithLabelValues(outcome).Inc()
	m.transferDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// IncAdjustment counts a direct adjustment.
func (m *LedgerMetrics) IncAdjustment(outcome string) {
	if m == nil || m.adjustments == nil {
		return
	}
	m.adjustments.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRetry counts one replay of operation.
func (m *LedgerMetrics) IncRetry(operation string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
