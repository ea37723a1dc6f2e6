// Package users implements the accounts repository: account creation and
// username lookup backed by PostgreSQL.
package users

import (
	"context"

	"github.com/fsxbroker/fsx/internal/server/models"
)

// Repository stores and retrieves registered accounts.
type Repository interface {
	// Create inserts a new user, returning common.ErrAlreadyExists if the
	// username is already taken.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetByUsername returns common.ErrNotFound if no such user exists.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// GetByID returns common.ErrNotFound if no such user exists.
	GetByID(ctx context.Context, id int64) (*models.User, error)
}
