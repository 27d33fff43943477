package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/domain/event"
	apperrors "chat-gateway/errors"
	"chat-gateway/internal"
	"chat-gateway/moderation"
	"chat-gateway/runtime"
	"chat-gateway/services"
)

// localRelay broadcasts straight to the registry, which is exactly the
// degraded fanout path. Cross-process bridging is covered elsewhere.
type localRelay struct {
	registry contract.IRegistry
}

func (r localRelay) Publish(e event.Event) {
	r.registry.BroadcastLocal(e)
}

type memPresence struct {
	mu    sync.Mutex
	users map[string]domain.SessionID
}

func (p *memPresence) AddUser(_ context.Context, username string, sessionID domain.SessionID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.users[username]; taken {
		return apperrors.ErrUsernameTaken
	}
	p.users[username] = sessionID
	return nil
}

func (p *memPresence) RemoveUser(_ context.Context, username string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, username)
	return nil
}

func (p *memPresence) ListUsers(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := make([]string, 0, len(p.users))
	for u := range p.users {
		users = append(users, u)
	}
	return users, nil
}

func (p *memPresence) Count(ctx context.Context) (int, error) {
	users, _ := p.ListUsers(ctx)
	return len(users), nil
}

type memMessages struct {
	mu      sync.Mutex
	records []domain.MessageRecord
}

func (m *memMessages) Append(_ context.Context, record domain.MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memMessages) GetRange(context.Context, int, int) ([]domain.MessageRecord, error) {
	return nil, nil
}

func (m *memMessages) GetByUsername(context.Context, string, int) ([]domain.MessageRecord, error) {
	return nil, nil
}

func (m *memMessages) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *memMessages) Clear(context.Context) error { return nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := internal.GetLoggerFromString("DEBUG")
	registry := runtime.NewRegistry(log)
	moderator, err := moderation.NewModerator(nil, '*', log)
	require.NoError(t, err)

	service := services.NewChatService(
		log,
		registry,
		&memPresence{users: make(map[string]domain.SessionID)},
		&memMessages{},
		localRelay{registry: registry},
		moderator,
		time.Second,
	)

	srv := httptest.NewServer(NewHandler(log, service))
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	_, err := conn.Write([]byte(frame))
	require.NoError(t, err)
}

// readEvent reads fanout events until one of the wanted type arrives.
func readEvent(t *testing.T, conn *websocket.Conn, want event.Type) event.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var e event.Event
		require.NoError(t, websocket.JSON.Receive(conn, &e))
		if e.Type == want {
			return e
		}
	}
}

func TestWebsocketJoinAndChat(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := dialWS(t, srv)
	sendFrame(t, alice, `{"type":"join","username":"alice"}`)
	roster := readEvent(t, alice, event.TypeUserList)
	req.Equal([]string{"alice"}, roster.Users)

	bob := dialWS(t, srv)
	sendFrame(t, bob, `{"type":"join","username":"bob"}`)
	roster = readEvent(t, bob, event.TypeUserList)
	req.ElementsMatch([]string{"alice", "bob"}, roster.Users)

	// Broadcasts include the publisher, so alice first sees her own
	// announcement, then bob's.
	joined := readEvent(t, alice, event.TypeUserJoined)
	req.Equal("alice", joined.Username)
	joined = readEvent(t, alice, event.TypeUserJoined)
	req.Equal("bob", joined.Username)
	req.Equal("bob joined the chat", joined.Content)

	sendFrame(t, alice, `{"type":"message","content":"hello bob"}`)
	msg := readEvent(t, bob, event.TypeMessage)
	req.Equal("alice", msg.Username)
	req.Equal("hello bob", msg.Content)

	// The sender receives its own message back too.
	msg = readEvent(t, alice, event.TypeMessage)
	req.Equal("hello bob", msg.Content)
}

func TestWebsocketDuplicateUsernameClosed(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := dialWS(t, srv)
	sendFrame(t, alice, `{"type":"join","username":"alice"}`)
	readEvent(t, alice, event.TypeUserList)

	imposter := dialWS(t, srv)
	sendFrame(t, imposter, `{"type":"join","username":"alice"}`)

	errEvent := readEvent(t, imposter, event.TypeError)
	req.Equal("username already taken", errEvent.Content)

	// The server closes the rejected connection.
	require.NoError(t, imposter.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e event.Event
	req.Error(websocket.JSON.Receive(imposter, &e))
}

func TestWebsocketDisconnectAnnouncesLeave(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := dialWS(t, srv)
	sendFrame(t, alice, `{"type":"join","username":"alice"}`)
	readEvent(t, alice, event.TypeUserList)

	bob := dialWS(t, srv)
	sendFrame(t, bob, `{"type":"join","username":"bob"}`)
	readEvent(t, bob, event.TypeUserList)
	readEvent(t, alice, event.TypeUserJoined)

	req.NoError(bob.Close())

	left := readEvent(t, alice, event.TypeUserLeft)
	req.Equal("bob", left.Username)
	req.Equal("bob left the chat", left.Content)

	roster := readEvent(t, alice, event.TypeUserList)
	req.Equal([]string{"alice"}, roster.Users)
}

func TestWebsocketSurvivesGarbageFrames(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := dialWS(t, srv)
	sendFrame(t, alice, `{"type":"join","username":"alice"}`)
	readEvent(t, alice, event.TypeUserList)

	sendFrame(t, alice, `{"type":"mystery"}`)
	sendFrame(t, alice, `{"type":"message","content":"still here"}`)

	msg := readEvent(t, alice, event.TypeMessage)
	req.Equal("still here", msg.Content)
}
