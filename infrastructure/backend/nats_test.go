package backend

import (
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"chat-gateway/contract"
	"chat-gateway/internal"
)

func newTestAdapter() *Adapter {
	return New(internal.GetLoggerFromString("ERROR"), "nats://localhost:4222", 10, time.Second)
}

func TestAdapterInstallReturnsReplacedConn(t *testing.T) {
	req := require.New(t)
	a := newTestAdapter()

	first := &nats.Conn{}
	req.Nil(a.install(first, nil, nil))
	req.True(a.Connected())

	second := &nats.Conn{}
	req.Same(first, a.install(second, nil, nil))
	req.True(a.Connected())
}

func TestAdapterIgnoresStaleConnHandlers(t *testing.T) {
	req := require.New(t)
	a := newTestAdapter()

	current := &nats.Conn{}
	a.install(current, nil, nil)

	// Handlers of a replaced connection must not touch the state.
	stale := &nats.Conn{}
	a.handleDisconnect(stale, fmt.Errorf("broker gone"))
	req.True(a.Connected())
	a.handleClosed(stale)
	req.True(a.Connected())

	a.handleDisconnect(current, fmt.Errorf("broker gone"))
	req.Equal(contract.StateDisconnected, a.State())

	a.handleReconnect(stale)
	req.False(a.Connected())
	a.handleReconnect(current)
	req.True(a.Connected())
}

func TestRangeWindowEmptyStream(t *testing.T) {
	req := require.New(t)

	_, _, ok := rangeWindow(0, 0, 50, 0)
	req.False(ok)
}

func TestRangeWindowNewestSlice(t *testing.T) {
	req := require.New(t)

	// 100 entries, take the 10 newest
	start, end, ok := rangeWindow(1, 100, 10, 0)
	req.True(ok)
	req.Equal(uint64(91), start)
	req.Equal(uint64(100), end)
}

func TestRangeWindowOffsetSkipsNewest(t *testing.T) {
	req := require.New(t)

	start, end, ok := rangeWindow(1, 100, 10, 20)
	req.True(ok)
	req.Equal(uint64(71), start)
	req.Equal(uint64(80), end)
}

func TestRangeWindowClampsToFirstRetained(t *testing.T) {
	req := require.New(t)

	// trimmed stream: sequences below 950 are gone
	start, end, ok := rangeWindow(950, 1000, 100, 0)
	req.True(ok)
	req.Equal(uint64(950), start)
	req.Equal(uint64(1000), end)
}

func TestRangeWindowOffsetBeyondRetained(t *testing.T) {
	req := require.New(t)

	_, _, ok := rangeWindow(950, 1000, 10, 60)
	req.False(ok)
}

func TestRangeWindowRejectsBadArguments(t *testing.T) {
	req := require.New(t)

	_, _, ok := rangeWindow(1, 100, 0, 0)
	req.False(ok)

	_, _, ok = rangeWindow(1, 100, 10, -1)
	req.False(ok)
}
