package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AllocationMetrics records the outcomes of stock mutations.
type AllocationMetrics struct {
	reservations  *prometheus.CounterVec
	importLines   *prometheus.CounterVec
	ledgerAppends *prometheus.CounterVec
}

// NewAllocationMetrics registers the allocation metrics on the provided registerer.
func NewAllocationMetrics(reg prometheus.Registerer) *AllocationMetrics {
	if reg == nil {
		return &AllocationMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_total",
		Help: "Reservation attempts by outcome.",
	}, []string{"outcome"})
	importLines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_import_lines_total",
		Help: "External order import lines by status.",
	}, []string{"status"})
	ledgerAppends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_ledger_appends_total",
		Help: "Ledger entries written by reason.",
	}, []string{"reason"})
	reg.MustRegister(reservations, importLines, ledgerAppends)
	return &AllocationMetrics{
		reservations:  reservations,
		importLines:   importLines,
		ledgerAppends: ledgerAppends,
	}
}

// IncReservation counts a reservation attempt outcome (reserved/insufficient).
func (m *AllocationMetrics) IncReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncImportLine counts an import line result by status.
func (m *AllocationMetrics) IncImportLine(status string) {
	if m == nil || m.importLines == nil {
		return
	}
	m.importLines.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncLedgerAppend counts a ledger append by reason.
func (m *AllocationMetrics) IncLedgerAppend(reason string) {
	if m == nil || m.ledgerAppends == nil {
		return
	}
	m.ledgerAppends.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
