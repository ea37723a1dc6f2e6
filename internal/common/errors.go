// Package common holds sentinel errors and small random-data helpers shared
// by every server-side package. Callers match these with errors.Is rather
// than string comparison.
package common

import "errors"

var (
	// ErrNotFound is returned by repositories and stores when the requested
	// row or object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by the users repository on a duplicate
	// username insert.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidCredentials is the single message login returns for both an
	// unknown username and a wrong password, so neither case is
	// distinguishable to a caller (no username enumeration).
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrSessionExpired is returned when a session's expiry has passed.
	ErrSessionExpired = errors.New("session expired")

	// ErrNotAuthenticated is returned when a connection attempts an
	// authenticated-only operation before logging in.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrWrongUser is returned when a connection attempts to act on a
	// transfer it is not the sender or receiver of.
	ErrWrongUser = errors.New("wrong user")

	// ErrOutOfOrder is returned when a chunk's index does not match a
	// transfer's expected next index.
	ErrOutOfOrder = errors.New("chunk out of order")

	// ErrBadState is returned when an operation is attempted against a
	// transfer in a state that does not permit it.
	ErrBadState = errors.New("transfer in wrong state")

	// ErrInternal is a catch-all for infrastructural failures (DB, disk)
	// that should not leak implementation detail to the wire.
	ErrInternal = errors.New("internal error")
)
