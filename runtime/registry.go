// Package runtime owns the per-process session registry: the set of
// live client connections served by this gateway.
package runtime

import (
	"log/slog"
	"sync"
	"time"

	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/domain/event"
)

type Registry struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[domain.SessionID]contract.EventSink
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[domain.SessionID]contract.EventSink),
	}
}

// Register assigns a fresh session identifier to the sink and starts
// including it in local broadcasts.
func (r *Registry) Register(sink contract.EventSink) domain.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := domain.NewSessionID(time.Now())
	r.sessions[id] = sink
	return id
}

// Unregister drops the session. Unknown identifiers are ignored, so a
// session that failed mid-broadcast can be dropped twice.
func (r *Registry) Unregister(id domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// BroadcastLocal delivers the event to every registered session of
// this process. A failed Send marks the session dead: it is dropped
// and its sink closed, and the broadcast continues with the others.
func (r *Registry) BroadcastLocal(e event.Event) {
	r.mu.RLock()
	snapshot := make(map[domain.SessionID]contract.EventSink, len(r.sessions))
	for id, sink := range r.sessions {
		snapshot[id] = sink
	}
	r.mu.RUnlock()

	for id, sink := range snapshot {
		if err := sink.Send(e); err != nil {
			r.log.Warn("Dropping dead session", "sessionId", id, "error", err)
			r.Unregister(id)
			_ = sink.Close()
		}
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
