package domain

import "time"

// UserRecord registers one online user. At most one record exists per
// username at any time; the record always references the single live
// session that owns it.
type UserRecord struct {
	Username  string    `json:"username"`
	SessionID SessionID `json:"clientId"`
	JoinedAt  time.Time `json:"joinedAt"`
}
