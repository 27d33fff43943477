package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-gateway/contract"
)

// Resyncer re-asserts state accumulated in a fallback store once the
// backend is reachable again.
type Resyncer interface {
	Resync(ctx context.Context)
}

// ReconnectWorker retries the backend connection on a fixed interval
// while it is down. The interval never grows and there is no attempt
// cap; the worker idles once the backend is connected.
type ReconnectWorker struct {
	log      *slog.Logger
	backend  contract.IBackend
	presence Resyncer
	interval time.Duration
	timeout  time.Duration
}

func NewReconnectWorker(
	log *slog.Logger,
	backend contract.IBackend,
	presence Resyncer,
	interval, timeout time.Duration,
) *ReconnectWorker {
	return &ReconnectWorker{
		log:      log,
		backend:  backend,
		presence: presence,
		interval: interval,
		timeout:  timeout,
	}
}

func (w *ReconnectWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.backend.Connected() {
				continue
			}
			w.attempt(ctx)
		}
	}
}

func (w *ReconnectWorker) attempt(ctx context.Context) {
	connectCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.backend.Connect(connectCtx); err != nil {
		w.log.Warn("Backend reconnection failed", "error", err, "retryIn", w.interval)
		return
	}

	w.log.Info("Backend reconnected, resyncing presence")
	w.presence.Resync(ctx)
}
