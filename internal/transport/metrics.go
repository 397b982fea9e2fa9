package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts traffic on the desktop link. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	decodeFaults   prometheus.Counter
	reconnects     prometheus.Counter
	state          prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbridge_frames_sent_total",
				Help: "Frames written to the desktop app, by message type",
			},
			[]string{"type"},
		),
		framesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbridge_frames_received_total",
				Help: "Frames decoded from the desktop app, by message type",
			},
			[]string{"type"},
		),
		decodeFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdbridge_decode_faults_total",
			Help: "Inbound frames dropped because they could not be decoded",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdbridge_reconnects_scheduled_total",
			Help: "Reconnect timers armed after a close or failed dial",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mdbridge_connection_state",
			Help: "0 disconnected, 1 connecting, 2 connected",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.framesSent, m.framesReceived, m.decodeFaults, m.reconnects, m.state)
	}
	return m
}

func (m *Metrics) sent(typ string) {
	if m != nil {
		m.framesSent.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) received(typ string) {
	if m != nil {
		m.framesReceived.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) fault() {
	if m != nil {
		m.decodeFaults.Inc()
	}
}

func (m *Metrics) reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) setState(s State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}
