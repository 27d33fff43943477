package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-gateway/domain"
	"chat-gateway/internal"
)

func record(username, content string) domain.MessageRecord {
	at := time.Now().UTC()
	return domain.MessageRecord{
		ID:        domain.NewMessageID(at),
		Username:  username,
		Content:   content,
		Timestamp: at,
	}
}

func TestMessageAppendAndRangeOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMessageStore(newFakeBackend(100), 100, internal.GetLoggerFromString("DEBUG"))

	for i := 0; i < 5; i++ {
		req.NoError(store.Append(ctx, record("alice", fmt.Sprintf("msg-%d", i))))
	}

	page, err := store.GetRange(ctx, 50, 0)
	req.NoError(err)
	req.Len(page, 5)
	for i, r := range page {
		req.Equal(fmt.Sprintf("msg-%d", i), r.Content)
	}
}

func TestMessageRangePaging(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMessageStore(newFakeBackend(100), 100, internal.GetLoggerFromString("DEBUG"))

	for i := 0; i < 10; i++ {
		req.NoError(store.Append(ctx, record("alice", fmt.Sprintf("msg-%d", i))))
	}

	// Skip the 3 newest, take the 4 newest of the rest.
	page, err := store.GetRange(ctx, 4, 3)
	req.NoError(err)
	req.Len(page, 4)
	req.Equal("msg-3", page[0].Content)
	req.Equal("msg-6", page[3].Content)

	// Offset past the transcript yields an empty page, not an error.
	page, err = store.GetRange(ctx, 4, 50)
	req.NoError(err)
	req.Empty(page)
}

func TestMessageCapEvictsOldest(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMessageStore(newFakeBackend(1), 1, internal.GetLoggerFromString("DEBUG"))

	req.NoError(store.Append(ctx, record("alice", "first")))
	req.NoError(store.Append(ctx, record("bob", "second")))

	n, err := store.Count(ctx)
	req.NoError(err)
	req.Equal(1, n)

	page, err := store.GetRange(ctx, 10, 0)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("second", page[0].Content)
	req.Equal("bob", page[0].Username)
}

func TestMessageFallbackWhileDisconnected(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := newFakeBackend(100)
	backend.setConnected(false)
	store := NewMessageStore(backend, 3, internal.GetLoggerFromString("DEBUG"))

	for i := 0; i < 5; i++ {
		req.NoError(store.Append(ctx, record("alice", fmt.Sprintf("msg-%d", i))))
	}

	// The fallback obeys the cap too.
	page, err := store.GetRange(ctx, 10, 0)
	req.NoError(err)
	req.Len(page, 3)
	req.Equal("msg-2", page[0].Content)
	req.Equal("msg-4", page[2].Content)
	req.Empty(backend.streamData)
}

func TestMessageFallbackOnAppendError(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := newFakeBackend(100)
	store := NewMessageStore(backend, 100, internal.GetLoggerFromString("DEBUG"))

	backend.streamErr = fmt.Errorf("stream unavailable")
	req.NoError(store.Append(ctx, record("alice", "kept locally")))

	backend.streamErr = nil
	req.Empty(backend.streamData)
	req.Len(store.fallback, 1)
}

func TestMessageGetByUsername(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMessageStore(newFakeBackend(100), 100, internal.GetLoggerFromString("DEBUG"))

	req.NoError(store.Append(ctx, record("alice", "a1")))
	req.NoError(store.Append(ctx, record("bob", "b1")))
	req.NoError(store.Append(ctx, record("alice", "a2")))
	req.NoError(store.Append(ctx, record("alice", "a3")))

	msgs, err := store.GetByUsername(ctx, "alice", 2)
	req.NoError(err)
	req.Len(msgs, 2)
	req.Equal("a2", msgs[0].Content)
	req.Equal("a3", msgs[1].Content)

	msgs, err = store.GetByUsername(ctx, "nobody", 10)
	req.NoError(err)
	req.Empty(msgs)
}

func TestMessageClear(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := newFakeBackend(100)
	backend.setConnected(false)
	store := NewMessageStore(backend, 100, internal.GetLoggerFromString("DEBUG"))

	req.NoError(store.Append(ctx, record("alice", "gone")))
	backend.setConnected(true)
	req.NoError(store.Append(ctx, record("alice", "also gone")))

	req.NoError(store.Clear(ctx))

	n, err := store.Count(ctx)
	req.NoError(err)
	req.Zero(n)
	req.Empty(store.fallback)
}

func TestMessageClearAbsorbsBackendError(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := newFakeBackend(100)
	store := NewMessageStore(backend, 100, internal.GetLoggerFromString("DEBUG"))

	req.NoError(store.Append(ctx, record("alice", "doomed")))

	// A transient clear failure stays a log line; the fallback list is
	// emptied and the caller sees success.
	backend.streamErr = fmt.Errorf("stream unavailable")
	req.NoError(store.Clear(ctx))
	req.Empty(store.fallback)
}
