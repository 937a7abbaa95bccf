package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QuotaMetrics counts reservation and settlement outcomes.
type QuotaMetrics struct {
	reserveAccepted *prometheus.CounterVec
	reserveRejected *prometheus.CounterVec
	settled         prometheus.Counter
	settledSeconds  prometheus.Counter
	cycleRollovers  prometheus.Counter
}

// NewQuotaMetrics registers quota engine metrics on the provided registerer.
func NewQuotaMetrics(reg prometheus.Registerer) *QuotaMetrics {
	if reg == nil {
		return &QuotaMetrics{}
	}
	accepted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_reserve_accepted_total",
		Help: "Accepted quota reservations.",
	}, []string{"plan"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_reserve_rejected_total",
		Help: "Rejected quota reservations by reason.",
	}, []string{"reason"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quota_settlements_total",
		Help: "Completed quota settlements.",
	})
	settledSeconds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quota_settled_seconds_total",
		Help: "Billed seconds converted from reservations.",
	})
	rollovers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quota_cycle_rollovers_total",
		Help: "Billing cycle rollovers applied.",
	})
	reg.MustRegister(accepted, rejected, settled, settledSeconds, rollovers)
	return &QuotaMetrics{
		reserveAccepted: accepted,
		reserveRejected: rejected,
		settled:         settled,
		settledSeconds:  settledSeconds,
		cycleRollovers:  rollovers,
	}
}

// IncReserveAccepted counts an accepted reservation for the plan.
func (q *QuotaMetrics) IncReserveAccepted(plan string) {
	if q == nil || q.reserveAccepted == nil {
		return
	}
	q.reserveAccepted.WithLabelValues(normalizeLabel(plan)).Inc()
}

// IncReserveRejected counts a rejected reservation by reason code.
func (q *QuotaMetrics) IncReserveRejected(reason string) {
	if q == nil || q.reserveRejected == nil {
		return
	}
	q.reserveRejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveSettlement counts one settlement and its billed seconds.
func (q *QuotaMetrics) ObserveSettlement(billedSec int64) {
	if q == nil || q.settled == nil {
		return
	}
	q.settled.Inc()
	if billedSec > 0 {
		q.settledSeconds.Add(float64(billedSec))
	}
}

// IncCycleRollover counts a lazy billing cycle rollover.
func (q *QuotaMetrics) IncCycleRollover() {
	if q == nil || q.cycleRollovers == nil {
		return
	}
	q.cycleRollovers.Inc()
}
