// Package domain contains core concepts of the chat gateway.
// This file defines the Session identity owned by one gateway process.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionID identifies one live client connection. It is unique within
// the owning gateway process and opaque to every other component.
type SessionID string

// NewSessionID builds a process-local session identifier from the
// current time and a random suffix.
func NewSessionID(at time.Time) SessionID {
	return SessionID(fmt.Sprintf("%d-%s", at.UnixMilli(), randomSuffix()))
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
