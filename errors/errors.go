package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrKeyExists          = fmt.Errorf("key already exists")
	ErrUsernameTaken      = fmt.Errorf("username already taken")
	ErrEmptyContent       = fmt.Errorf("empty message content")
	ErrNotJoined          = fmt.Errorf("session has not joined")
	ErrAlreadyJoined      = fmt.Errorf("session already joined")
	ErrBackendUnavailable = fmt.Errorf("store backend unavailable")
	ErrUnknownEventType   = fmt.Errorf("unknown event type")
)
