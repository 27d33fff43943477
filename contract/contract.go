//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-gateway/domain"
	"chat-gateway/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink delivers fanout events to one attached client transport.
// Send must be safe for concurrent use; a failed Send marks the
// transport as dead and the registry drops the session.
type EventSink interface {
	Send(e event.Event) error
	Close() error
}

// IRegistry owns the live sessions of one gateway process.
type IRegistry interface {
	Register(sink EventSink) domain.SessionID
	Unregister(id domain.SessionID)
	BroadcastLocal(e event.Event)
	Count() int
}

// IRelay broadcasts one event to every session of every gateway
// process, or to local sessions only while degraded.
type IRelay interface {
	Publish(e event.Event)
}

type IPresenceStore interface {
	// AddUser fails with errors.ErrUsernameTaken when the username is
	// already online. The insert is atomic at the active backend.
	AddUser(ctx context.Context, username string, sessionID domain.SessionID) error
	// RemoveUser is idempotent.
	RemoveUser(ctx context.Context, username string) error
	ListUsers(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

type IMessageStore interface {
	Append(ctx context.Context, record domain.MessageRecord) error
	// GetRange returns the limit most recent records after skipping the
	// offset newest ones, oldest-first within the page.
	GetRange(ctx context.Context, limit, offset int) ([]domain.MessageRecord, error)
	GetByUsername(ctx context.Context, username string, limit int) ([]domain.MessageRecord, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// BackendState is the connectivity state of the store backend adapter.
// Transitions: Disconnected -> Connecting -> Connected -> Disconnected.
type BackendState string

const (
	StateDisconnected BackendState = "disconnected"
	StateConnecting   BackendState = "connecting"
	StateConnected    BackendState = "connected"
)

// KeyValue is the presence surface of the store backend.
type KeyValue interface {
	// Create is an atomic conditional insert; it fails with
	// errors.ErrKeyExists when the key is already present.
	Create(ctx context.Context, key string, value []byte) error
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Stream is the bounded transcript surface of the store backend. The
// backend evicts the oldest entries so the stream never exceeds its
// configured cap.
type Stream interface {
	Append(ctx context.Context, data []byte) error
	// Range returns the limit newest entries after skipping the offset
	// newest ones, oldest-first.
	Range(ctx context.Context, limit, offset int) ([][]byte, error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Channel is the shared broadcast surface of the store backend.
// Handlers run on the subscription's own goroutine, serialized
// relative to themselves.
type Channel interface {
	Publish(data []byte) error
	Subscribe(handler func(data []byte)) (unsubscribe func(), err error)
}

// IBackend is the store backend adapter: one durable service providing
// the presence bucket, the transcript stream and the relay channel,
// with explicitly tracked connectivity.
type IBackend interface {
	Connect(ctx context.Context) error
	State() BackendState
	Connected() bool
	Presence() KeyValue
	Transcript() Stream
	Channel() Channel
	Close()
}
