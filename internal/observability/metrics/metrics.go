package metrics

import "github.com/prometheus/client_golang/prometheus"

// CoreMetrics exposes counters/histograms for the booking, session and sync
// flows. All methods are nil-safe so wiring metrics stays optional in tests.
type CoreMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	replaysTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	downgradesTotal  prometheus.Counter
	qualitySamples   prometheus.Histogram
}

func NewCoreMetrics(reg prometheus.Registerer) *CoreMetrics {
	m := &CoreMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sehat",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		replaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sehat",
			Subsystem: "syncqueue",
			Name:      "replays_total",
			Help:      "Offline mutation replays by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sehat",
			Subsystem: "connectivity",
			Name:      "transitions_total",
			Help:      "Committed connectivity transitions by new state",
		}, []string{"state"}),
		downgradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sehat",
			Subsystem: "session",
			Name:      "downgrades_total",
			Help:      "Video sessions auto-downgraded to audio",
		}),
		qualitySamples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sehat",
			Subsystem: "session",
			Name:      "quality_sample",
			Help:      "Reported consultation quality samples",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.replaysTotal, m.transitionsTotal, m.downgradesTotal, m.qualitySamples)
	return m
}

func (m *CoreMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *CoreMetrics) ObserveReplay(outcome string) {
	if m == nil {
		return
	}
	m.replaysTotal.WithLabelValues(outcome).Inc()
}

func (m *CoreMetrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(state).Inc()
}

func (m *CoreMetrics) ObserveDowngrade() {
	if m == nil {
		return
	}
	m.downgradesTotal.Inc()
}

func (m *CoreMetrics) ObserveQuality(sample float64) {
	if m == nil {
		return
	}
	m.qualitySamples.Observe(sample)
}
