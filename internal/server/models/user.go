package models

import "time"

// User is an account registered with the broker. PassHash is the PBKDF2
// verifier string produced by cryptox.HashPassword, never the raw password.
type User struct {
	ID        int64
	Username  string
	Email     string
	PassHash  string
	CreatedAt time.Time
}
