package metrics

import "github.com/prometheus/client_golang/prometheus"

// CalendarMetrics exposes counters/histograms for calendar flows. A nil
// *CalendarMetrics is valid and records nothing.
type CalendarMetrics struct {
	fetchTotal     *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	mutationsTotal *prometheus.CounterVec
	seriesTotal    *prometheus.CounterVec
	visibleEvents  prometheus.Gauge
}

func New(reg prometheus.Registerer) *CalendarMetrics {
	m := &CalendarMetrics{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptcal",
			Subsystem: "calendar",
			Name:      "fetch_total",
			Help:      "calendar_data fetches by outcome",
		}, []string{"outcome"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "apptcal",
			Subsystem: "calendar",
			Name:      "fetch_latency_seconds",
			Help:      "Latency of calendar_data fetches",
			Buckets:   prometheus.DefBuckets,
		}),
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptcal",
			Subsystem: "calendar",
			Name:      "mutations_total",
			Help:      "Optimistic drag/resize mutations by outcome",
		}, []string{"kind", "outcome"}),
		seriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptcal",
			Subsystem: "calendar",
			Name:      "instances_created_total",
			Help:      "Appointment instances submitted for creation by outcome",
		}, []string{"outcome"}),
		visibleEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "apptcal",
			Subsystem: "calendar",
			Name:      "visible_events",
			Help:      "Events passing the clinic filter after the last refresh",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.fetchTotal, m.fetchLatency, m.mutationsTotal, m.seriesTotal, m.visibleEvents)
	return m
}

func (m *CalendarMetrics) ObserveFetch(ok bool, seconds float64) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(outcome(ok)).Inc()
	m.fetchLatency.Observe(seconds)
}

func (m *CalendarMetrics) ObserveMutation(kind string, ok bool) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(kind, outcome(ok)).Inc()
}

func (m *CalendarMetrics) ObserveCreated(created, failed int) {
	if m == nil {
		return
	}
	m.seriesTotal.WithLabelValues("success").Add(float64(created))
	m.seriesTotal.WithLabelValues("failure").Add(float64(failed))
}

func (m *CalendarMetrics) SetVisible(n int) {
	if m == nil {
		return
	}
	m.visibleEvents.Set(float64(n))
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
