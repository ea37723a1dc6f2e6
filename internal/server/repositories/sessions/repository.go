// Package sessions implements the session repository: issuing, looking
// up, touching, and revoking opaque bearer-token sessions, backed by
// PostgreSQL.
package sessions

import (
	"context"
	"time"

	"github.com/fsxbroker/fsx/internal/server/models"
)

// Repository stores login sessions keyed by their opaque token.
type Repository interface {
	// Create persists a new session expiring at expiresAt.
	Create(ctx context.Context, userID int64, token string, expiresAt time.Time) (*models.Session, error)
	// FindByToken returns common.ErrNotFound if no session has this token.
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	// TouchLastSeen bumps a session's last_seen_at to now.
	TouchLastSeen(ctx context.Context, token string) error
	// Delete revokes a session. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error
	// DeleteExpired removes every session whose expiry has passed, returning
	// the number of rows removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
