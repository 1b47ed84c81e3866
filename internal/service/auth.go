package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/patient-records/internal/model"
	"github.com/iliyamo/patient-records/internal/repository"
	"github.com/iliyamo/patient-records/internal/utils"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown username
// and for a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Register rejects input the credential store cannot hold.
var (
	ErrUsernameRequired = errors.New("username is required")
	ErrPasswordTooLong  = errors.New("password exceeds 72 bytes")
)

// UserStore is the credential store.
type UserStore interface {
	Create(ctx context.Context, username, email, passwordHash string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// SessionStore persists login sessions.
type SessionStore interface {
	Store(ctx context.Context, sessionID string, userID uint64, exp time.Time) error
	Validate(ctx context.Context, sessionID string) (uint64, error)
	Revoke(ctx context.Context, sessionID string) error
}

// Authenticator registers users, checks credentials and manages the
// sessions bound to them.
type Authenticator struct {
	users      UserStore
	sessions   SessionStore
	secret     string
	ttl        time.Duration
	bcryptCost int
	logger     zerolog.Logger
}

func NewAuthenticator(users UserStore, sessions SessionStore, secret string, ttl time.Duration, bcryptCost int, logger zerolog.Logger) *Authenticator {
	if users == nil || sessions == nil {
		panic("nil store passed to NewAuthenticator")
	}
	return &Authenticator{
		users:      users,
		sessions:   sessions,
		secret:     secret,
		ttl:        ttl,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// SessionTTL is the lifetime of sessions issued by EstablishSession.
func (a *Authenticator) SessionTTL() time.Duration { return a.ttl }

// Register creates a user.  An existing username yields
// repository.ErrDuplicateUsername.
func (a *Authenticator) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if _, err := a.users.GetByUsername(ctx, username); err == nil {
		return nil, repository.ErrDuplicateUsername
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := utils.HashPassword(password, a.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrPasswordTooLong
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	// The unique index still catches a concurrent registration.
	u, err := a.users.Create(ctx, username, email, hash)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	a.logger.Info().Uint64("user_id", u.ID).Str("username", u.Username).Msg("user registered")
	return u, nil
}

// Authenticate returns the user whose password matches.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := a.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.BurnPasswordCheck(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// EstablishSession records a new session for u and returns the signed
// token to hand to the browser.
func (a *Authenticator) EstablishSession(ctx context.Context, u *model.User) (utils.SessionToken, error) {
	tok, err := utils.NewSessionToken(a.secret, u.ID, a.ttl)
	if err != nil {
		return utils.SessionToken{}, fmt.Errorf("sign session: %w", err)
	}
	if err := a.sessions.Store(ctx, tok.SessionID, u.ID, tok.Exp); err != nil {
		return utils.SessionToken{}, fmt.Errorf("store session: %w", err)
	}
	a.logger.Info().Uint64("user_id", u.ID).Str("session_id", tok.SessionID).Msg("session established")
	return tok, nil
}

// ResolveIdentity maps a session token to its user.  Anonymous requests
// (empty, invalid, expired, revoked or orphaned tokens) yield nil, nil; an
// error means the stores failed.
func (a *Authenticator) ResolveIdentity(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := utils.ParseSessionToken(a.secret, token)
	if err != nil {
		return nil, nil
	}
	userID, err := a.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("validate session: %w", err)
	}
	if sub, _ := claims.UserID(); sub != userID {
		return nil, nil
	}
	u, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// TerminateSession revokes the session named by token.  Tokens that do
// not verify name no session, so there is nothing to revoke.
func (a *Authenticator) TerminateSession(ctx context.Context, token string) error {
	claims, err := utils.ParseSessionToken(a.secret, token)
	if err != nil {
		return nil
	}
	if err := a.sessions.Revoke(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	a.logger.Info().Str("session_id", claims.SessionID).Msg("session terminated")
	return nil
}
