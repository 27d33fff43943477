// Package observability aggregates gateway telemetry: fanout counters,
// connection gauges and the process's own resource usage, exposed both
// as a Prometheus endpoint and as the health snapshot.
package observability

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-gateway/contract"
)

// HealthSnapshot is the payload of the health endpoint.
type HealthSnapshot struct {
	Status       string  `json:"status"`
	BackendState string  `json:"backendState"`
	Connections  int     `json:"connections"`
	CPUPercent   float64 `json:"cpuPercent"`
	MemoryRSSMb  float64 `json:"memoryRssMb"`
}

// sessionCounter decouples the manager from the runtime registry.
type sessionCounter interface {
	Count() int
}

type backendStater interface {
	State() contract.BackendState
	Connected() bool
}

// MonitoringManager owns its own Prometheus registry so that several
// gateways can live in one test binary without duplicate registration
// panics.
type MonitoringManager struct {
	log      *slog.Logger
	registry *prometheus.Registry
	sessions sessionCounter
	backend  backendStater

	eventsBridged   prometheus.Counter
	eventsDegraded  prometheus.Counter
	eventsDelivered prometheus.Counter

	mu         sync.RWMutex
	cpuPercent float64
	rssBytes   uint64
}

func NewMonitoringManager(log *slog.Logger, sessions sessionCounter, backend backendStater) *MonitoringManager {
	mm := &MonitoringManager{
		log:      log,
		registry: prometheus.NewRegistry(),
		sessions: sessions,
		backend:  backend,
		eventsBridged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_gateway_events_bridged_total",
			Help: "Events published to the shared fanout channel.",
		}),
		eventsDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_gateway_events_degraded_total",
			Help: "Events broadcast locally because the backend was unreachable.",
		}),
		eventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_gateway_events_delivered_total",
			Help: "Events received from the fanout channel and delivered to local sessions.",
		}),
	}

	mm.registry.MustRegister(
		mm.eventsBridged,
		mm.eventsDegraded,
		mm.eventsDelivered,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "chat_gateway_active_connections",
			Help: "Live client sessions on this gateway.",
		}, func() float64 { return float64(sessions.Count()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "chat_gateway_backend_connected",
			Help: "1 while the store backend is connected.",
		}, func() float64 {
			if backend.Connected() {
				return 1
			}
			return 0
		}),
	)
	return mm
}

func (mm *MonitoringManager) EventBridged()   { mm.eventsBridged.Inc() }
func (mm *MonitoringManager) EventDegraded()  { mm.eventsDegraded.Inc() }
func (mm *MonitoringManager) EventDelivered() { mm.eventsDelivered.Inc() }

// SetSelfStats records the latest resource usage sample.
func (mm *MonitoringManager) SetSelfStats(cpuPercent float64, rssBytes uint64) {
	mm.mu.Lock()
	mm.cpuPercent = cpuPercent
	mm.rssBytes = rssBytes
	mm.mu.Unlock()
}

// Snapshot builds the health payload. The gateway reports ok even
// while degraded; the backend state field carries the difference.
func (mm *MonitoringManager) Snapshot() HealthSnapshot {
	mm.mu.RLock()
	cpu, rss := mm.cpuPercent, mm.rssBytes
	mm.mu.RUnlock()

	return HealthSnapshot{
		Status:       "ok",
		BackendState: string(mm.backend.State()),
		Connections:  mm.sessions.Count(),
		CPUPercent:   cpu,
		MemoryRSSMb:  float64(rss) / (1 << 20),
	}
}

// MetricsHandler serves the Prometheus exposition endpoint.
func (mm *MonitoringManager) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{})
}
