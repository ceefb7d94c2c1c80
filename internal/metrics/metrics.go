// Package metrics 定义白板同步服务的 Prometheus 指标。
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ActiveConnections   prometheus.Gauge
	ActiveRooms         prometheus.Gauge
	EventsTotal         *prometheus.CounterVec
	MalformedEvents     prometheus.Counter
	Deliveries          prometheus.Counter
	DroppedSends        prometheus.Counter
	PersistenceFailures *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New returns the process-wide metrics, registering them on first use.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "whiteboard_active_connections",
				Help: "Current number of live websocket connections",
			}),
			ActiveRooms: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "whiteboard_active_rooms",
				Help: "Current number of rooms with at least one bound connection",
			}),
			EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "whiteboard_events_total",
				Help: "Total number of inbound events accepted, by event name",
			}, []string{"event"}),
			MalformedEvents: promauto.NewCounter(prometheus.CounterOpts{
				Name: "whiteboard_malformed_events_total",
				Help: "Total number of inbound events dropped as malformed",
			}),
			Deliveries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "whiteboard_deliveries_total",
				Help: "Total number of outbound messages queued to connections",
			}),
			DroppedSends: promauto.NewCounter(prometheus.CounterOpts{
				Name: "whiteboard_dropped_sends_total",
				Help: "Total number of outbound messages dropped because a send queue was full",
			}),
			PersistenceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "whiteboard_persistence_failures_total",
				Help: "Total number of failed storage writes, by operation",
			}, []string{"operation"}),
		}
	})
	return metricsInstance
}

func (m *Metrics) ConnectionOpened() {
	if m == nil || m.ActiveConnections == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil || m.ActiveConnections == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) SetActiveRooms(n int) {
	if m == nil || m.ActiveRooms == nil {
		return
	}
	m.ActiveRooms.Set(float64(n))
}

func (m *Metrics) RecordEvent(name string) {
	if m == nil || m.EventsTotal == nil {
		return
	}
	m.EventsTotal.WithLabelValues(name).Inc()
}

func (m *Metrics) RecordMalformed() {
	if m == nil || m.MalformedEvents == nil {
		return
	}
	m.MalformedEvents.Inc()
}

func (m *Metrics) RecordDelivery() {
	if m == nil || m.Deliveries == nil {
		return
	}
	m.Deliveries.Inc()
}

func (m *Metrics) RecordDroppedSend() {
	if m == nil || m.DroppedSends == nil {
		return
	}
	m.DroppedSends.Inc()
}

func (m *Metrics) RecordPersistenceFailure(operation string) {
	if m == nil || m.PersistenceFailures == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(operation).Inc()
}
