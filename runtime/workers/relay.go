package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-gateway/contract"
	"chat-gateway/domain/event"
)

const subscriptionCheckInterval = time.Second

// RelayMetrics counts fanout outcomes for the monitoring endpoint.
type RelayMetrics interface {
	EventBridged()
	EventDegraded()
	EventDelivered()
}

// RelayWorker bridges fanout events across gateway processes through
// the backend channel. While the backend is unreachable the relay
// degrades to local broadcasts: sessions on this process still get
// every event published here, other processes get nothing.
//
// Bridged events reach local sessions through this process's own
// channel subscription, never twice.
type RelayWorker struct {
	log      *slog.Logger
	backend  contract.IBackend
	registry contract.IRegistry
	metrics  RelayMetrics

	mu          sync.Mutex
	unsubscribe func()
}

func NewRelayWorker(
	log *slog.Logger,
	backend contract.IBackend,
	registry contract.IRegistry,
	metrics RelayMetrics,
) *RelayWorker {
	return &RelayWorker{log: log, backend: backend, registry: registry, metrics: metrics}
}

// Publish sends one event to every session of every gateway process,
// or to local sessions only while degraded. Fire and forget: a failed
// publish falls back to the local broadcast for this event.
func (r *RelayWorker) Publish(e event.Event) {
	data, err := e.Encode()
	if err != nil {
		r.log.Error("Dropping unencodable event", "type", e.Type, "error", err)
		return
	}

	// The bridged path reaches local sessions only through this
	// process's own subscription, so it is taken only while one is
	// active. Realigning here closes the window between a reconnect
	// and the next ticker pass.
	r.ensureSubscription()
	if r.subscribed() {
		err := r.backend.Channel().Publish(data)
		if err == nil {
			r.metrics.EventBridged()
			return
		}
		r.log.Warn("Channel publish failed, broadcasting locally", "type", e.Type, "error", err)
	}

	r.metrics.EventDegraded()
	r.registry.BroadcastLocal(e)
}

// Run keeps the channel subscription aligned with backend
// connectivity: subscribed while connected, dropped while not.
func (r *RelayWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(subscriptionCheckInterval)
	defer ticker.Stop()

	r.ensureSubscription()
	for {
		select {
		case <-ctx.Done():
			r.dropSubscription()
			return nil
		case <-ticker.C:
			r.ensureSubscription()
		}
	}
}

func (r *RelayWorker) ensureSubscription() {
	connected := r.backend.Connected()

	r.mu.Lock()
	defer r.mu.Unlock()

	if connected && r.unsubscribe == nil {
		unsubscribe, err := r.backend.Channel().Subscribe(r.deliver)
		if err != nil {
			r.log.Warn("Channel subscription failed", "error", err)
			return
		}
		r.unsubscribe = unsubscribe
		r.log.Info("Fanout bridge active")
		return
	}

	if !connected && r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
		r.log.Warn("Fanout bridge lost, broadcasting locally only")
	}
}

func (r *RelayWorker) subscribed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribe != nil
}

func (r *RelayWorker) dropSubscription() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
}

// deliver handles one frame received from the channel, including the
// frames this process published itself.
func (r *RelayWorker) deliver(data []byte) {
	e, err := event.DecodeFanout(data)
	if err != nil {
		r.log.Warn("Dropping malformed channel frame", "error", err)
		return
	}
	r.metrics.EventDelivered()
	r.registry.BroadcastLocal(e)
}
