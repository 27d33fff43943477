// Package event defines the closed set of frames exchanged with
// clients and relayed between gateway processes.
//
// Inbound frames (client to gateway): join, message, leave.
// Fanout events (gateway to clients, possibly across processes):
// message, userJoined, userLeft, userList, error.
//
// Anything not matching a known tag is rejected at the boundary.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "chat-gateway/errors"
)

type Type string

const (
	TypeJoin    Type = "join"
	TypeMessage Type = "message"
	TypeLeave   Type = "leave"

	TypeUserJoined Type = "userJoined"
	TypeUserLeft   Type = "userLeft"
	TypeUserList   Type = "userList"
	TypeError      Type = "error"
)

// Event is the single wire envelope for both directions. Which fields
// are meaningful depends on Type; constructors below build well-formed
// values.
type Event struct {
	Type      Type     `json:"type"`
	Username  string   `json:"username,omitempty"`
	Content   string   `json:"content,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Users     []string `json:"users,omitempty"`
}

func NewMessage(username, content string, at time.Time) Event {
	return Event{
		Type:      TypeMessage,
		Username:  username,
		Content:   content,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

// NewUserJoined carries a derived, client-renderable line in Content.
func NewUserJoined(username string, at time.Time) Event {
	return Event{
		Type:      TypeUserJoined,
		Username:  username,
		Content:   fmt.Sprintf("%s joined the chat", username),
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

func NewUserLeft(username string, at time.Time) Event {
	return Event{
		Type:      TypeUserLeft,
		Username:  username,
		Content:   fmt.Sprintf("%s left the chat", username),
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

func NewUserList(users []string) Event {
	if users == nil {
		users = []string{}
	}
	return Event{Type: TypeUserList, Users: users}
}

func NewError(content string, at time.Time) Event {
	return Event{
		Type:      TypeError,
		Content:   content,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

var inboundTypes = map[Type]struct{}{
	TypeJoin:    {},
	TypeMessage: {},
	TypeLeave:   {},
}

var fanoutTypes = map[Type]struct{}{
	TypeMessage:    {},
	TypeUserJoined: {},
	TypeUserLeft:   {},
	TypeUserList:   {},
	TypeError:      {},
}

// DecodeInbound parses a client frame. Unknown tags and malformed
// payloads yield an error; callers drop the frame and keep the
// connection open.
func DecodeInbound(data []byte) (Event, error) {
	return decode(data, inboundTypes)
}

// DecodeFanout parses an event received from the relay channel.
func DecodeFanout(data []byte) (Event, error) {
	return decode(data, fanoutTypes)
}

func decode(data []byte, allowed map[Type]struct{}) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if _, ok := allowed[e.Type]; !ok {
		return Event{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownEventType, e.Type)
	}
	return e, nil
}

// Encode serializes an event for the relay channel or a client
// transport.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
