// Package backend adapts NATS JetStream into the uniform store surface
// consumed by the presence and message stores and the fanout relay.
//
// One adapter owns one NATS connection and exposes three facets:
// a KeyValue bucket (online users), a capped stream (transcript) and a
// core pub/sub subject (relay channel). Connectivity is tracked as an
// explicit state machine instead of ambient flags; the reconnect
// worker drives retries after a failure.
package backend

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"chat-gateway/contract"
	apperrors "chat-gateway/errors"
)

const (
	presenceBucket    = "CHAT_USERS"
	transcriptStream  = "CHAT_MESSAGES"
	transcriptSubject = "chat.messages.store"
	channelSubject    = "chat.events"

	clientName = "chat-gateway"
)

type Adapter struct {
	log         *slog.Logger
	url         string
	maxMessages int64
	opTimeout   time.Duration

	mu    sync.RWMutex
	state contract.BackendState
	nc    *nats.Conn
	js    nats.JetStreamContext
	kv    nats.KeyValue
}

func New(log *slog.Logger, url string, maxMessages int, opTimeout time.Duration) *Adapter {
	return &Adapter{
		log:         log,
		url:         url,
		maxMessages: int64(maxMessages),
		opTimeout:   opTimeout,
		state:       contract.StateDisconnected,
	}
}

// Connect dials the backend and provisions the bucket and the stream.
// Safe to call repeatedly; a connected adapter returns immediately.
// On failure the adapter is left Disconnected and the caller retries.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.Connected() {
		return nil
	}
	a.setState(contract.StateConnecting)

	nc, err := nats.Connect(a.url,
		nats.Name(clientName),
		nats.Timeout(a.opTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(a.opTimeout),
		nats.DisconnectErrHandler(a.handleDisconnect),
		nats.ReconnectHandler(a.handleReconnect),
		nats.ClosedHandler(a.handleClosed),
	)
	if err != nil {
		a.setState(contract.StateDisconnected)
		return err
	}

	js, err := nc.JetStream(nats.MaxWait(a.opTimeout))
	if err != nil {
		nc.Close()
		a.setState(contract.StateDisconnected)
		return err
	}

	if _, err = js.AddStream(&nats.StreamConfig{
		Name:     transcriptStream,
		Subjects: []string{transcriptSubject},
		MaxMsgs:  a.maxMessages,
		Discard:  nats.DiscardOld,
		Storage:  nats.FileStorage,
	}); err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		a.setState(contract.StateDisconnected)
		return err
	}

	kv, err := js.KeyValue(presenceBucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  presenceBucket,
			History: 1,
		})
	}
	if err != nil {
		nc.Close()
		a.setState(contract.StateDisconnected)
		return err
	}

	// A redial can win while the previous connection is still retrying
	// internally; it must be closed or it retries forever.
	if old := a.install(nc, js, kv); old != nil {
		old.Close()
	}
	a.log.Info("Store backend connected", "url", nc.ConnectedUrl())
	return nil
}

// install makes the fresh connection current and returns the one it
// replaces, which the caller must close.
func (a *Adapter) install(nc *nats.Conn, js nats.JetStreamContext, kv nats.KeyValue) *nats.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.nc
	a.nc, a.js, a.kv = nc, js, kv
	a.state = contract.StateConnected
	return old
}

// The nats handlers fire on the client's own goroutine, possibly for a
// connection a later redial has already replaced. Only the current
// connection may drive the adapter state.

func (a *Adapter) handleDisconnect(nc *nats.Conn, err error) {
	if !a.isCurrent(nc) {
		return
	}
	a.log.Warn("Store backend disconnected", "error", err)
	a.setState(contract.StateDisconnected)
}

func (a *Adapter) handleReconnect(nc *nats.Conn) {
	if !a.isCurrent(nc) {
		return
	}
	a.log.Info("Store backend reconnected", "url", nc.ConnectedUrl())
	a.setState(contract.StateConnected)
}

func (a *Adapter) handleClosed(nc *nats.Conn) {
	if !a.isCurrent(nc) {
		return
	}
	a.setState(contract.StateDisconnected)
}

func (a *Adapter) isCurrent(nc *nats.Conn) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nc == nc
}

func (a *Adapter) setState(s contract.BackendState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Adapter) State() contract.BackendState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Adapter) Connected() bool {
	return a.State() == contract.StateConnected
}

func (a *Adapter) conn() *nats.Conn {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nc
}

func (a *Adapter) jetStream() nats.JetStreamContext {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.js
}

func (a *Adapter) keyValue() nats.KeyValue {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.kv
}

func (a *Adapter) Presence() contract.KeyValue { return presenceKV{a} }
func (a *Adapter) Transcript() contract.Stream { return transcript{a} }
func (a *Adapter) Channel() contract.Channel   { return relayChannel{a} }

// Close drains the connection. Outstanding operations are not awaited.
func (a *Adapter) Close() {
	nc := a.conn()
	if nc == nil {
		return
	}
	if err := nc.Drain(); err != nil {
		nc.Close()
	}
	a.setState(contract.StateDisconnected)
}

// presenceKV maps the nats KeyValue bucket to the contract surface.
// Operation deadlines are bounded by the JetStream MaxWait configured
// at connect time, so the ctx parameters carry cancellation only.
type presenceKV struct{ a *Adapter }

func (p presenceKV) Create(_ context.Context, key string, value []byte) error {
	kv := p.a.keyValue()
	if kv == nil {
		return apperrors.ErrBackendUnavailable
	}
	_, err := kv.Create(key, value)
	if errors.Is(err, nats.ErrKeyExists) {
		return apperrors.ErrKeyExists
	}
	return err
}

func (p presenceKV) Put(_ context.Context, key string, value []byte) error {
	kv := p.a.keyValue()
	if kv == nil {
		return apperrors.ErrBackendUnavailable
	}
	_, err := kv.Put(key, value)
	return err
}

func (p presenceKV) Delete(_ context.Context, key string) error {
	kv := p.a.keyValue()
	if kv == nil {
		return apperrors.ErrBackendUnavailable
	}
	err := kv.Delete(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (p presenceKV) Keys(_ context.Context) ([]string, error) {
	kv := p.a.keyValue()
	if kv == nil {
		return nil, apperrors.ErrBackendUnavailable
	}
	keys, err := kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil, nil
	}
	return keys, err
}

// transcript maps the capped JetStream stream to the contract surface.
// The stream is created with MaxMsgs and DiscardOld, so the backend
// itself trims the transcript on every append.
type transcript struct{ a *Adapter }

func (t transcript) Append(_ context.Context, data []byte) error {
	js := t.a.jetStream()
	if js == nil {
		return apperrors.ErrBackendUnavailable
	}
	_, err := js.Publish(transcriptSubject, data)
	return err
}

func (t transcript) Range(_ context.Context, limit, offset int) ([][]byte, error) {
	js := t.a.jetStream()
	if js == nil {
		return nil, apperrors.ErrBackendUnavailable
	}
	info, err := js.StreamInfo(transcriptStream)
	if err != nil {
		return nil, err
	}

	start, end, ok := rangeWindow(info.State.FirstSeq, info.State.LastSeq, limit, offset)
	if !ok {
		return nil, nil
	}

	out := make([][]byte, 0, end-start+1)
	for seq := start; seq <= end; seq++ {
		msg, err := js.GetMsg(transcriptStream, seq)
		if err != nil {
			// Sequence gap: the entry was evicted between StreamInfo
			// and the read.
			continue
		}
		out = append(out, msg.Data)
	}
	return out, nil
}

func (t transcript) Len(_ context.Context) (int, error) {
	js := t.a.jetStream()
	if js == nil {
		return 0, apperrors.ErrBackendUnavailable
	}
	info, err := js.StreamInfo(transcriptStream)
	if err != nil {
		return 0, err
	}
	return int(info.State.Msgs), nil
}

func (t transcript) Clear(_ context.Context) error {
	js := t.a.jetStream()
	if js == nil {
		return apperrors.ErrBackendUnavailable
	}
	return js.PurgeStream(transcriptStream)
}

// rangeWindow resolves "the limit newest entries after skipping the
// offset newest" into an inclusive [start, end] sequence window.
// ok is false when the window falls entirely before the first
// retained sequence or the stream is empty.
func rangeWindow(first, last uint64, limit, offset int) (start, end uint64, ok bool) {
	if last == 0 || last < first || limit <= 0 || offset < 0 {
		return 0, 0, false
	}
	e := int64(last) - int64(offset)
	if e < int64(first) {
		return 0, 0, false
	}
	s := e - int64(limit) + 1
	if s < int64(first) {
		s = int64(first)
	}
	return uint64(s), uint64(e), true
}

// relayChannel maps the core pub/sub subject to the contract surface.
// Core NATS (not JetStream): fanout events are ephemeral and never
// persisted.
type relayChannel struct{ a *Adapter }

func (c relayChannel) Publish(data []byte) error {
	nc := c.a.conn()
	if nc == nil || !nc.IsConnected() {
		return apperrors.ErrBackendUnavailable
	}
	return nc.Publish(channelSubject, data)
}

func (c relayChannel) Subscribe(handler func(data []byte)) (func(), error) {
	nc := c.a.conn()
	if nc == nil || !nc.IsConnected() {
		return nil, apperrors.ErrBackendUnavailable
	}
	sub, err := nc.Subscribe(channelSubject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}
