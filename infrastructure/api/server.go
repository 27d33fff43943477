// Package api serves the REST surface of the gateway: presence and
// transcript queries, admin operations, health and metrics, plus the
// websocket mount.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"chat-gateway/contract"
	"chat-gateway/domain"
	apperrors "chat-gateway/errors"
	"chat-gateway/moderation"
	"chat-gateway/observability"
)

const (
	defaultMessageLimit = 50
	defaultRecentLimit  = 20
)

type Server struct {
	log        *slog.Logger
	presence   contract.IPresenceStore
	messages   contract.IMessageStore
	moderator  moderation.Moderator
	monitoring *observability.MonitoringManager
}

func NewServer(
	log *slog.Logger,
	presence contract.IPresenceStore,
	messages contract.IMessageStore,
	moderator moderation.Moderator,
	monitoring *observability.MonitoringManager,
) *Server {
	return &Server{
		log:        log,
		presence:   presence,
		messages:   messages,
		moderator:  moderator,
		monitoring: monitoring,
	}
}

// Router mounts every route, the websocket endpoint included.
func (s *Server) Router(wsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/ws", wsHandler)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.monitoring.MetricsHandler()).Methods(http.MethodGet)

	r.HandleFunc("/api/users", s.handleListUsers).Methods(http.MethodGet)
	r.HandleFunc("/api/users/count", s.handleUserCount).Methods(http.MethodGet)
	r.HandleFunc("/api/users/check/{username}", s.handleCheckUsername).Methods(http.MethodGet)
	r.HandleFunc("/api/users/join", s.handleJoin).Methods(http.MethodPost)
	r.HandleFunc("/api/users/leave", s.handleLeave).Methods(http.MethodPost)

	r.HandleFunc("/api/messages", s.handlePostMessage).Methods(http.MethodPost)
	r.HandleFunc("/api/messages", s.handleGetMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/messages", s.handleClearMessages).Methods(http.MethodDelete)
	r.HandleFunc("/api/messages/count", s.handleMessageCount).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/recent", s.handleRecentMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/user/{username}", s.handleUserMessages).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitoring.Snapshot())
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.presence.ListUsers(r.Context())
	if err != nil {
		s.fail(w, "Failed to get users", err)
		return
	}
	sort.Strings(users)
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUserCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.presence.Count(r.Context())
	if err != nil {
		s.fail(w, "Failed to get user count", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	users, err := s.presence.ListUsers(r.Context())
	if err != nil {
		s.fail(w, "Failed to check username", err)
		return
	}
	available := true
	for _, u := range users {
		if u == username {
			available = false
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

type joinPayload struct {
	Username string `json:"username"`
	ClientID string `json:"clientId"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var payload joinPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Username == "" {
		writeError(w, http.StatusBadRequest, "Username is required")
		return
	}

	sessionID := domain.SessionID(payload.ClientID)
	if sessionID == "" {
		sessionID = domain.NewSessionID(time.Now())
	}

	err := s.presence.AddUser(r.Context(), payload.Username, sessionID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]string{
			"message":  "User joined successfully",
			"username": payload.Username,
		})
	case errors.Is(err, apperrors.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already taken")
	default:
		s.fail(w, "Failed to join user", err)
	}
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var payload joinPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Username == "" {
		writeError(w, http.StatusBadRequest, "Username is required")
		return
	}

	if err := s.presence.RemoveUser(r.Context(), payload.Username); err != nil {
		s.fail(w, "Failed to remove user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "User left successfully",
		"username": payload.Username,
	})
}

type messagePayload struct {
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var payload messagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Username == "" || payload.Content == "" {
		writeError(w, http.StatusBadRequest, "Username and content are required")
		return
	}

	// Client timestamps are accepted when parseable, otherwise the
	// gateway stamps the record itself.
	at := time.Now().UTC()
	if payload.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			at = parsed.UTC()
		}
	}

	record := domain.MessageRecord{
		ID:        domain.NewMessageID(at),
		Username:  payload.Username,
		Content:   s.moderator.Censor(payload.Content),
		Timestamp: at,
	}
	if err := s.messages.Append(r.Context(), record); err != nil {
		s.fail(w, "Failed to save message", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Message saved successfully",
		"data":    record,
	})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultMessageLimit)
	offset := queryInt(r, "offset", 0)

	messages, err := s.messages.GetRange(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, "Failed to get messages", err)
		return
	}
	if messages == nil {
		messages = []domain.MessageRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleRecentMessages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultRecentLimit)

	messages, err := s.messages.GetRange(r.Context(), limit, 0)
	if err != nil {
		s.fail(w, "Failed to get recent messages", err)
		return
	}
	if messages == nil {
		messages = []domain.MessageRecord{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleMessageCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.messages.Count(r.Context())
	if err != nil {
		s.fail(w, "Failed to get message count", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	if err := s.messages.Clear(r.Context()); err != nil {
		s.fail(w, "Failed to clear messages", err)
		return
	}
	s.log.Info("Transcript cleared")
	writeJSON(w, http.StatusOK, map[string]string{"message": "All messages cleared successfully"})
}

func (s *Server) handleUserMessages(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	limit := queryInt(r, "limit", defaultMessageLimit)

	messages, err := s.messages.GetByUsername(r.Context(), username, limit)
	if err != nil {
		s.fail(w, "Failed to get user messages", err)
		return
	}
	if messages == nil {
		messages = []domain.MessageRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"username": username,
		"messages": messages,
		"count":    len(messages),
	})
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	s.log.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
