package repositories

import (
	"context"
	"sync"

	"chat-gateway/contract"
	apperrors "chat-gateway/errors"
)

// fakeBackend is an in-memory stand-in for the store backend with
// switchable connectivity and injectable failures.
type fakeBackend struct {
	mu        sync.Mutex
	connected bool

	kvData map[string][]byte
	kvErr  error

	streamData [][]byte
	streamCap  int
	streamErr  error
}

func newFakeBackend(streamCap int) *fakeBackend {
	return &fakeBackend{
		connected: true,
		kvData:    make(map[string][]byte),
		streamCap: streamCap,
	}
}

func (f *fakeBackend) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeBackend) Connect(context.Context) error { return nil }

func (f *fakeBackend) State() contract.BackendState {
	if f.Connected() {
		return contract.StateConnected
	}
	return contract.StateDisconnected
}

func (f *fakeBackend) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBackend) Presence() contract.KeyValue { return fakeKV{f} }
func (f *fakeBackend) Transcript() contract.Stream { return fakeStream{f} }
func (f *fakeBackend) Channel() contract.Channel   { return fakeChannel{} }
func (f *fakeBackend) Close()                      {}

type fakeKV struct{ f *fakeBackend }

func (k fakeKV) Create(_ context.Context, key string, value []byte) error {
	k.f.mu.Lock()
	defer k.f.mu.Unlock()
	if k.f.kvErr != nil {
		return k.f.kvErr
	}
	if _, exists := k.f.kvData[key]; exists {
		return apperrors.ErrKeyExists
	}
	k.f.kvData[key] = value
	return nil
}

func (k fakeKV) Put(_ context.Context, key string, value []byte) error {
	k.f.mu.Lock()
	defer k.f.mu.Unlock()
	if k.f.kvErr != nil {
		return k.f.kvErr
	}
	k.f.kvData[key] = value
	return nil
}

func (k fakeKV) Delete(_ context.Context, key string) error {
	k.f.mu.Lock()
	defer k.f.mu.Unlock()
	if k.f.kvErr != nil {
		return k.f.kvErr
	}
	delete(k.f.kvData, key)
	return nil
}

func (k fakeKV) Keys(context.Context) ([]string, error) {
	k.f.mu.Lock()
	defer k.f.mu.Unlock()
	if k.f.kvErr != nil {
		return nil, k.f.kvErr
	}
	keys := make([]string, 0, len(k.f.kvData))
	for key := range k.f.kvData {
		keys = append(keys, key)
	}
	return keys, nil
}

type fakeStream struct{ f *fakeBackend }

func (s fakeStream) Append(_ context.Context, data []byte) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.streamErr != nil {
		return s.f.streamErr
	}
	s.f.streamData = append(s.f.streamData, data)
	if s.f.streamCap > 0 && len(s.f.streamData) > s.f.streamCap {
		s.f.streamData = s.f.streamData[len(s.f.streamData)-s.f.streamCap:]
	}
	return nil
}

func (s fakeStream) Range(_ context.Context, limit, offset int) ([][]byte, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.streamErr != nil {
		return nil, s.f.streamErr
	}
	end := len(s.f.streamData) - offset
	if end <= 0 {
		return nil, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([][]byte, end-start)
	copy(out, s.f.streamData[start:end])
	return out, nil
}

func (s fakeStream) Len(context.Context) (int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.streamErr != nil {
		return 0, s.f.streamErr
	}
	return len(s.f.streamData), nil
}

func (s fakeStream) Clear(context.Context) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.streamErr != nil {
		return s.f.streamErr
	}
	s.f.streamData = nil
	return nil
}

type fakeChannel struct{}

func (fakeChannel) Publish([]byte) error { return nil }

func (fakeChannel) Subscribe(func([]byte)) (func(), error) { return func() {}, nil }
