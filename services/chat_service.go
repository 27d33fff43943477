// Package services implements the chat protocol: session lifecycle,
// join/leave presence changes and message fanout, on top of the
// registry, the stores and the relay.
package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/domain/event"
	apperrors "chat-gateway/errors"
	"chat-gateway/moderation"
)

type sessionState int

const (
	stateConnected sessionState = iota
	stateJoined
	stateClosed
)

// Session is one live client connection and its protocol state.
// Transitions: connected -> joined -> closed, with closed reachable
// from anywhere. Username is set exactly once, at the join.
type Session struct {
	id   domain.SessionID
	sink contract.EventSink

	mu       sync.Mutex
	state    sessionState
	username string
}

func (s *Session) joinedUsername() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.state == stateJoined
}

// joinRequest carries the validated join parameters.
type joinRequest struct {
	Username string `validate:"required,min=1,max=32"`
}

type ChatService struct {
	log       *slog.Logger
	registry  contract.IRegistry
	presence  contract.IPresenceStore
	messages  contract.IMessageStore
	relay     contract.IRelay
	moderator moderation.Moderator
	validate  *validator.Validate
	timeout   time.Duration
}

func NewChatService(
	log *slog.Logger,
	registry contract.IRegistry,
	presence contract.IPresenceStore,
	messages contract.IMessageStore,
	relay contract.IRelay,
	moderator moderation.Moderator,
	timeout time.Duration,
) *ChatService {
	return &ChatService{
		log:       log,
		registry:  registry,
		presence:  presence,
		messages:  messages,
		relay:     relay,
		moderator: moderator,
		validate:  validator.New(),
		timeout:   timeout,
	}
}

// Attach registers a new connection. The session owns no username
// until its join frame is accepted.
func (s *ChatService) Attach(sink contract.EventSink) *Session {
	id := s.registry.Register(sink)
	s.log.Info("Session attached", "sessionId", id)
	return &Session{id: id, sink: sink}
}

// HandleFrame dispatches one inbound client frame. Malformed or
// unknown frames are dropped; the connection stays open.
func (s *ChatService) HandleFrame(ctx context.Context, session *Session, raw []byte) {
	e, err := event.DecodeInbound(raw)
	if err != nil {
		s.log.Warn("Dropping invalid frame", "sessionId", session.id, "error", err)
		return
	}

	switch e.Type {
	case event.TypeJoin:
		s.handleJoin(ctx, session, e.Username)
	case event.TypeMessage:
		s.handleMessage(ctx, session, e.Content)
	case event.TypeLeave:
		s.Detach(ctx, session)
	}
}

// handleJoin claims the username and announces the arrival. A rejected
// join sends an error event and closes the session; the client may
// reconnect with another name.
func (s *ChatService) handleJoin(ctx context.Context, session *Session, username string) {
	username = strings.TrimSpace(username)
	if err := s.validate.Struct(joinRequest{Username: username}); err != nil {
		s.log.Warn("Rejecting invalid username", "sessionId", session.id, "error", err)
		s.reject(ctx, session, "invalid username")
		return
	}

	session.mu.Lock()
	if session.state != stateConnected {
		session.mu.Unlock()
		s.log.Warn("Ignoring join on non-fresh session", "sessionId", session.id, "error", apperrors.ErrAlreadyJoined)
		return
	}
	session.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.presence.AddUser(opCtx, username, session.id); err != nil {
		if errors.Is(err, apperrors.ErrUsernameTaken) {
			s.log.Info("Username already taken", "sessionId", session.id, "username", username)
			s.reject(ctx, session, "username already taken")
			return
		}
		s.log.Error("Presence add failed", "username", username, "error", err)
		s.reject(ctx, session, "join failed")
		return
	}

	session.mu.Lock()
	session.state = stateJoined
	session.username = username
	session.mu.Unlock()
	s.log.Info("User joined", "sessionId", session.id, "username", username)

	users := s.userSnapshot(ctx)

	// The joiner gets the current roster directly; everyone everywhere
	// gets the announcement and the refreshed roster.
	if err := session.sink.Send(event.NewUserList(users)); err != nil {
		s.log.Warn("Roster send failed", "sessionId", session.id, "error", err)
	}
	s.relay.Publish(event.NewUserJoined(username, time.Now()))
	s.relay.Publish(event.NewUserList(users))
}

// handleMessage stores and fans out one chat message from a joined
// session. The sender identity always comes from the session, never
// from the frame.
func (s *ChatService) handleMessage(ctx context.Context, session *Session, content string) {
	username, joined := session.joinedUsername()
	if !joined {
		s.log.Warn("Dropping message from non-joined session", "sessionId", session.id, "error", apperrors.ErrNotJoined)
		return
	}

	if strings.TrimSpace(content) == "" {
		s.log.Warn("Dropping empty message", "sessionId", session.id, "username", username, "error", apperrors.ErrEmptyContent)
		return
	}
	content = s.moderator.Censor(content)

	now := time.Now().UTC()
	record := domain.MessageRecord{
		ID:        domain.NewMessageID(now),
		Username:  username,
		Content:   content,
		Timestamp: now,
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.messages.Append(opCtx, record); err != nil {
		// Fanout still happens: persistence loss must not mute the room.
		s.log.Error("Transcript append failed", "id", record.ID, "error", err)
	}

	s.relay.Publish(event.NewMessage(username, content, now))
}

// Detach tears the session down: presence, registry and transport.
// Idempotent, so the leave frame and the connection close can both
// call it.
func (s *ChatService) Detach(ctx context.Context, session *Session) {
	session.mu.Lock()
	if session.state == stateClosed {
		session.mu.Unlock()
		return
	}
	wasJoined := session.state == stateJoined
	username := session.username
	session.state = stateClosed
	session.mu.Unlock()

	s.registry.Unregister(session.id)

	if wasJoined {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		if err := s.presence.RemoveUser(opCtx, username); err != nil {
			s.log.Error("Presence remove failed", "username", username, "error", err)
		}
		cancel()

		s.relay.Publish(event.NewUserLeft(username, time.Now()))
		s.relay.Publish(event.NewUserList(s.userSnapshot(ctx)))
		s.log.Info("User left", "sessionId", session.id, "username", username)
	}

	if err := session.sink.Close(); err != nil {
		s.log.Debug("Sink close failed", "sessionId", session.id, "error", err)
	}
}

func (s *ChatService) reject(ctx context.Context, session *Session, reason string) {
	if err := session.sink.Send(event.NewError(reason, time.Now())); err != nil {
		s.log.Debug("Error event send failed", "sessionId", session.id, "error", err)
	}
	s.Detach(ctx, session)
}

func (s *ChatService) userSnapshot(ctx context.Context) []string {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	users, err := s.presence.ListUsers(opCtx)
	if err != nil {
		s.log.Error("Presence list failed", "error", err)
		return []string{}
	}
	return users
}
