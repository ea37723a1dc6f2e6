package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fsxbroker/fsx/internal/common"
	"github.com/fsxbroker/fsx/internal/dbx"
	"github.com/fsxbroker/fsx/internal/server/models"
)

// PostgresRepository is the PostgreSQL-backed Repository.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository binds a PostgresRepository to db, which may be
// *sql.DB or a *sql.Tx obtained via dbx.WithTx.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) (*models.Session, error) {
	query :=
		`INSERT INTO sessions (user_id, token, expires_at)
         VALUES ($1, $2, $3)
		 RETURNING id, last_seen_at, created_at
		 `

	s := &models.Session{UserID: userID, Token: token, ExpiresAt: expiresAt}
	err := r.db.QueryRowContext(ctx, query, userID, token, expiresAt).
		Scan(&s.ID, &s.LastSeenAt, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	query :=
		`SELECT id, user_id, token, expires_at, last_seen_at, created_at
		 FROM sessions WHERE token = $1
		 `

	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, token).
		Scan(&s.ID, &s.UserID, &s.Token, &s.ExpiresAt, &s.LastSeenAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) TouchLastSeen(ctx context.Context, token string) error {
	query := `UPDATE sessions SET last_seen_at = now() WHERE token = $1`

	res, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	query := `DELETE FROM sessions WHERE token = $1`

	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < now()`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
