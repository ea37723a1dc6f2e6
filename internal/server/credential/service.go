// Package credential implements account registration and login: hashing
// and verifying passwords via cryptox, and issuing the opaque bearer-token
// sessions a connection carries on every authenticated request afterward.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsxbroker/fsx/internal/common"
	"github.com/fsxbroker/fsx/internal/cryptox"
	"github.com/fsxbroker/fsx/internal/dbx"
	"github.com/fsxbroker/fsx/internal/logging"
	"github.com/fsxbroker/fsx/internal/server/models"
	"github.com/fsxbroker/fsx/internal/server/repositories/repomanager"
)

// Service registers accounts and authenticates logins, each backed by the
// users and sessions repositories vended by a RepositoryManager.
type Service struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	sessionTTL  time.Duration
	log         logging.Logger
}

// New constructs a Service. db is typically a *sql.DB; sessionTTL is the
// lifetime assigned to every newly issued session token.
func New(db dbx.DBTX, m repomanager.RepositoryManager, sessionTTL time.Duration, log logging.Logger) *Service {
	return &Service{db: db, repomanager: m, sessionTTL: sessionTTL, log: log}
}

// Register creates a new account with a PBKDF2 password verifier, returning
// common.ErrAlreadyExists if username is taken.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", common.ErrInternal, err)
	}

	user := &models.User{Username: username, Email: email, PassHash: hash}
	repo := s.repomanager.Users(s.db)

	user, err = repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.ErrAlreadyExists
		}
		s.log.Error(ctx, "register: create user failed", "username", username, "err", err)
		return nil, common.ErrInternal
	}

	s.log.Info(ctx, "account registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login verifies username/password and, on success, issues a new session
// token. Both an unknown username and a wrong password produce
// common.ErrInvalidCredentials so neither is distinguishable to a caller.
func (s *Service) Login(ctx context.Context, username, password string) (*models.Session, *models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, common.ErrInvalidCredentials
		}
		s.log.Error(ctx, "login: lookup user failed", "username", username, "err", err)
		return nil, nil, common.ErrInternal
	}

	ok, err := cryptox.VerifyPassword(password, user.PassHash)
	if err != nil {
		s.log.Error(ctx, "login: verify password failed", "username", username, "err", err)
		return nil, nil, common.ErrInternal
	}
	if !ok {
		return nil, nil, common.ErrInvalidCredentials
	}

	token, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: generate token: %v", common.ErrInternal, err)
	}

	sessionsRepo := s.repomanager.Sessions(s.db)
	session, err := sessionsRepo.Create(ctx, user.ID, token, time.Now().Add(s.sessionTTL))
	if err != nil {
		s.log.Error(ctx, "login: create session failed", "username", username, "err", err)
		return nil, nil, common.ErrInternal
	}

	s.log.Info(ctx, "login succeeded", "user_id", user.ID, "username", user.Username)
	return session, user, nil
}

// Authenticate resolves a bearer token to its user, rejecting expired
// sessions, and touches the session's last-seen timestamp on success.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	sessionsRepo := s.repomanager.Sessions(s.db)

	session, err := sessionsRepo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotAuthenticated
		}
		return nil, common.ErrInternal
	}

	if session.ExpiresAt.Before(time.Now()) {
		return nil, common.ErrSessionExpired
	}

	if tErr := sessionsRepo.TouchLastSeen(ctx, token); tErr != nil && !errors.Is(tErr, common.ErrNotFound) {
		s.log.Warn(ctx, "authenticate: touch last_seen failed", "err", tErr)
	}

	usersRepo := s.repomanager.Users(s.db)
	user, err := usersRepo.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotAuthenticated
		}
		return nil, common.ErrInternal
	}
	return user, nil
}

// LookupUsername reports whether username names a registered account,
// used by the connection handler to validate a file offer's recipient
// without requiring that recipient to be currently online.
func (s *Service) LookupUsername(ctx context.Context, username string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		s.log.Error(ctx, "lookup username failed", "username", username, "err", err)
		return nil, common.ErrInternal
	}
	return user, nil
}

// Logout revokes a session token. Revoking an unknown token is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	sessionsRepo := s.repomanager.Sessions(s.db)
	if err := sessionsRepo.Delete(ctx, token); err != nil {
		s.log.Error(ctx, "logout: delete session failed", "err", err)
		return common.ErrInternal
	}
	return nil
}
