package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-gateway/contract"
	"chat-gateway/internal"
)

type staticSessions int

func (s staticSessions) Count() int { return int(s) }

type staticBackend struct{ state contract.BackendState }

func (b staticBackend) State() contract.BackendState { return b.state }
func (b staticBackend) Connected() bool              { return b.state == contract.StateConnected }

func TestMonitoringSnapshot(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(
		internal.GetLoggerFromString("DEBUG"),
		staticSessions(3),
		staticBackend{state: contract.StateDisconnected},
	)
	mm.SetSelfStats(12.5, 64<<20)

	snap := mm.Snapshot()
	req.Equal("ok", snap.Status)
	req.Equal("disconnected", snap.BackendState)
	req.Equal(3, snap.Connections)
	req.Equal(12.5, snap.CPUPercent)
	req.Equal(64.0, snap.MemoryRSSMb)
}

func TestMonitoringMetricsEndpoint(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(
		internal.GetLoggerFromString("DEBUG"),
		staticSessions(1),
		staticBackend{state: contract.StateConnected},
	)
	mm.EventBridged()
	mm.EventBridged()
	mm.EventDegraded()
	mm.EventDelivered()

	rec := httptest.NewRecorder()
	mm.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	req.Contains(body, "chat_gateway_events_bridged_total 2")
	req.Contains(body, "chat_gateway_events_degraded_total 1")
	req.Contains(body, "chat_gateway_events_delivered_total 1")
	req.Contains(body, "chat_gateway_active_connections 1")
	req.Contains(body, "chat_gateway_backend_connected 1")

	// Two managers in one process must not collide.
	req.NotPanics(func() {
		NewMonitoringManager(
			internal.GetLoggerFromString("DEBUG"),
			staticSessions(0),
			staticBackend{state: contract.StateConnected},
		)
	})
}
