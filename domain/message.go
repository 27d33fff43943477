// Package domain contains core concepts of the chat gateway.
// This file defines MessageRecord and related rules.
// Messages are immutable once stored.
package domain

import (
	"fmt"
	"time"
)

// MessageRecord is one immutable transcript entry. The transcript is
// append-only, insertion-ordered and capped; the oldest record is
// evicted first once the cap is exceeded.
type MessageRecord struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageID builds a message identifier from process time and a
// random suffix. Globally unique with high probability; collisions
// would require two messages in the same millisecond drawing the same
// suffix.
func NewMessageID(at time.Time) string {
	return fmt.Sprintf("%d-%s", at.UnixMilli(), randomSuffix())
}
