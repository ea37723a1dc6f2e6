package models

import "time"

// Session is a persisted login session: an opaque bearer token tied to a
// user, with an expiry set when the credential service issues it at login
// and a last-seen timestamp touched each time the credential service
// re-authenticates the token.
type Session struct {
	ID         int64
	UserID     int64
	Token      string
	ExpiresAt  time.Time
	LastSeenAt time.Time
	CreatedAt  time.Time
}
