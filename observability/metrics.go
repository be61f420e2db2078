// Package observability exposes the gateway's Prometheus collectors.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_gateway"

// Frame outcomes used as the "outcome" label of FramesReceived.
const (
	FrameMessage     = "message"
	FramePing        = "ping"
	FrameMalformed   = "malformed"
	FrameIgnored     = "ignored"
	FrameRateLimited = "rate_limited"
	FrameFailed      = "failed"
)

// Metrics owns its own registry so that several gateways (or tests) can live
// in the same process without duplicate registration panics.
type Metrics struct {
	Registry *prometheus.Registry

	ActiveConnections prometheus.Gauge
	ActiveSessions    prometheus.Gauge
	LiveRooms         prometheus.Gauge
	SessionsOpened    prometheus.Counter
	SessionsClosed    prometheus.Counter
	FramesReceived    *prometheus.CounterVec
	Broadcasts        prometheus.Counter
	Deliveries        prometheus.Counter
	DeliveryFailures  prometheus.Counter
	ProcessRSSBytes   prometheus.Gauge
	ProcessCPUPercent prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_connections",
			Help: "Live (room, user) connections held by the registry.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sessions",
			Help: "Sessions that are not CLOSED yet.",
		}),
		LiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "live_rooms",
			Help: "Rooms with at least one live connection.",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_opened_total",
			Help: "Sessions that reached ACTIVE.",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_closed_total",
			Help: "Sessions that reached CLOSED.",
		}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_received_total",
			Help: "Inbound frames by outcome.",
		}, []string{"outcome"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcasts_total",
			Help: "Fan-out operations started.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Frames successfully handed to a connection.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "delivery_failures_total",
			Help: "Frames that could not be handed to a connection.",
		}),
		ProcessRSSBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_rss_bytes",
			Help: "Resident memory of the gateway process.",
		}),
		ProcessCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_cpu_percent",
			Help: "CPU usage of the gateway process.",
		}),
	}
	m.Registry.MustRegister(
		m.ActiveConnections, m.ActiveSessions, m.LiveRooms,
		m.SessionsOpened, m.SessionsClosed, m.FramesReceived,
		m.Broadcasts, m.Deliveries, m.DeliveryFailures,
		m.ProcessRSSBytes, m.ProcessCPUPercent,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the gateway registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
