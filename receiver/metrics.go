package receiver

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts receiver activity per stream. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	fetches     *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	emitted     *prometheus.CounterVec
	buffered    *prometheus.CounterVec
	drained     *prometheus.CounterVec
}

// NewMetrics creates and registers receiver metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flume_fetches_total",
			Help: "Total number of batch fetches issued against the source.",
		}, []string{"stream"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flume_fetch_errors_total",
			Help: "Total number of fetches that terminated a subscription.",
		}, []string{"stream"}),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flume_messages_emitted_total",
			Help: "Messages emitted downstream directly from a fetch.",
		}, []string{"stream"}),
		buffered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flume_messages_buffered_total",
			Help: "Messages parked in the overflow buffer awaiting demand.",
		}, []string{"stream"}),
		drained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flume_messages_drained_total",
			Help: "Messages emitted downstream from the overflow buffer.",
		}, []string{"stream"}),
	}
	reg.MustRegister(m.fetches, m.fetchErrors, m.emitted, m.buffered, m.drained)
	return m
}

func (m *Metrics) incFetches(stream string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(stream).Inc()
}

func (m *Metrics) incFetchErrors(stream string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(stream).Inc()
}

func (m *Metrics) incEmitted(stream string) {
	if m == nil {
		return
	}
	m.emitted.WithLabelValues(stream).Inc()
}

func (m *Metrics) incBuffered(stream string) {
	if m == nil {
		return
	}
	m.buffered.WithLabelValues(stream).Inc()
}

func (m *Metrics) incDrained(stream string) {
	if m == nil {
		return
	}
	m.drained.WithLabelValues(stream).Inc()
}
