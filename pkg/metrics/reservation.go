package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReservationMetrics counts availability verdicts and reservation lifecycle
// transitions.
type ReservationMetrics struct {
	verdicts    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	expiries    prometheus.Counter
	conflicts   prometheus.Counter
}

// NewReservationMetrics registers the reservation metrics on reg. A nil
// registerer yields a no-op recorder.
func NewReservationMetrics(reg prometheus.Registerer) *ReservationMetrics {
	if reg == nil {
		return &ReservationMetrics{}
	}
	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "availability",
		Name:      "verdicts_total",
		Help:      "Availability checks by resulting status.",
	}, []string{"status"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reservation",
		Name:      "transitions_total",
		Help:      "Reservation state transitions by event.",
	}, []string{"event"})
	expiries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "timer",
		Name:      "expiry_cascades_total",
		Help:      "Timer expiry cascades executed.",
	})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reservation",
		Name:      "claim_conflicts_total",
		Help:      "Claims skipped because another reservation already held a number.",
	})
	reg.MustRegister(verdicts, transitions, expiries, conflicts)
	return &ReservationMetrics{
		verdicts:    verdicts,
		transitions: transitions,
		expiries:    expiries,
		conflicts:   conflicts,
	}
}

func (m *ReservationMetrics) ObserveVerdict(status string) {
	if m == nil || m.verdicts == nil {
		return
	}
	m.verdicts.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *ReservationMetrics) ObserveTransition(event string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *ReservationMetrics) IncExpiry() {
	if m == nil || m.expiries == nil {
		return
	}
	m.expiries.Inc()
}

func (m *ReservationMetrics) IncConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}
