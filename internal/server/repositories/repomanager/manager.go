package repomanager

import (
	"context"
	"database/sql"

	"github.com/fsxbroker/fsx/internal/dbx"
	"github.com/fsxbroker/fsx/internal/server/repositories/sessions"
	"github.com/fsxbroker/fsx/internal/server/repositories/users"
)

// RepositoryManager vends request-scoped repositories and runs schema
// migrations. db passed to Users/Sessions may be a *sql.DB or a *sql.Tx, so
// a caller can run several repository calls inside one transaction via
// dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
