package message

import "github.com/prometheus/client_golang/prometheus"

// metrics holds a Connection's optional Prometheus instrumentation. A nil
// *metrics is valid and every method on it is a no-op, so call sites never
// need to check whether metrics are enabled before recording.
type metrics struct {
	sent            *prometheus.CounterVec
	received        *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	conversationsUp prometheus.Gauge
	responseTime    prometheus.Histogram
}

// newMetrics builds and registers a metrics set against reg, or returns
// nil if reg is nil so the owning Connection runs unmetered.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phnqmsg",
			Name:      "messages_sent_total",
			Help:      "Total messages sent by type.",
		}, []string{"type"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phnqmsg",
			Name:      "messages_received_total",
			Help:      "Total messages received by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phnqmsg",
			Name:      "messages_dropped_total",
			Help:      "Total inbound messages dropped, by reason.",
		}, []string{"reason"}),
		conversationsUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "phnqmsg",
			Name:      "conversations_in_flight",
			Help:      "Conversations this connection is currently waiting on.",
		}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "phnqmsg",
			Name:      "response_seconds",
			Help:      "Time from request to final response, per conversation.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.sent, m.received, m.dropped, m.conversationsUp, m.responseTime)
	return m
}

func (m *metrics) recordSent(msgType string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(msgType).Inc()
}

func (m *metrics) recordReceived(msgType string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(msgType).Inc()
}

func (m *metrics) recordDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *metrics) conversationStarted() {
	if m == nil {
		return
	}
	m.conversationsUp.Inc()
}

func (m *metrics) conversationEnded(elapsedSeconds float64) {
	if m == nil {
		return
	}
	m.conversationsUp.Dec()
	m.responseTime.Observe(elapsedSeconds)
}
