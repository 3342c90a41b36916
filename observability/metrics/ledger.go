package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LedgerMetrics struct {
	opsTotal *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics, registering them on
// first use.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "paytoreply_ops_total",
				Help: "Count of ledger operations by type and outcome.",
			}, []string{"op", "result"}),
		}
		prometheus.MustRegister(ledgerRegistry.opsTotal)
	})
	return ledgerRegistry
}

// ObserveOp records one completed operation attempt.
func (m *LedgerMetrics) ObserveOp(op, result string) {
	if m == nil {
		return
	}
	m.opsTotal.WithLabelValues(op, result).Inc()
}
