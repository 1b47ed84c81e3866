package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/patient-records/internal/repository"
	"github.com/iliyamo/patient-records/internal/service/servicetest"
	"github.com/iliyamo/patient-records/internal/utils"
)

func newTestAuth() (*Authenticator, *servicetest.Users, *servicetest.Sessions) {
	users := servicetest.NewUsers()
	sessions := servicetest.NewSessions()
	a := NewAuthenticator(users, sessions, "test-secret", time.Hour, bcrypt.MinCost, zerolog.Nop())
	return a, users, sessions
}

func TestRegister_HashesPassword(t *testing.T) {
	a, users, _ := newTestAuth()
	ctx := context.Background()

	u, err := a.Register(ctx, "alice", "alice@example.com", "wonderland")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "wonderland", u.PasswordHash)
	assert.True(t, utils.VerifyPassword(u.PasswordHash, "wonderland"))
	assert.Equal(t, 1, users.Count("alice"))
}

func TestRegister_DuplicateUsername(t *testing.T) {
	a, users, _ := newTestAuth()
	ctx := context.Background()

	_, err := a.Register(ctx, "alice", "a@example.com", "pw-one")
	require.NoError(t, err)

	_, err = a.Register(ctx, "alice", "other@example.com", "pw-two")
	assert.ErrorIs(t, err, repository.ErrDuplicateUsername)
	assert.Equal(t, 1, users.Count("alice"))
}

func TestRegister_StoreFailure(t *testing.T) {
	a, users, _ := newTestAuth()
	users.Err = errors.New("connection refused")

	_, err := a.Register(context.Background(), "bob", "b@example.com", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrDuplicateUsername)
}

func TestAuthenticate(t *testing.T) {
	a, _, _ := newTestAuth()
	ctx := context.Background()
	_, err := a.Register(ctx, "alice", "a@example.com", "correct horse")
	require.NoError(t, err)

	u, err := a.Authenticate(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	for name, tc := range map[string]struct{ user, pass string }{
		"wrong password":   {"alice", "battery staple"},
		"empty password":   {"alice", ""},
		"unknown username": {"mallory", "correct horse"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(ctx, tc.user, tc.pass)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	a, _, sessions := newTestAuth()
	ctx := context.Background()
	u, err := a.Register(ctx, "alice", "a@example.com", "pw")
	require.NoError(t, err)

	tok, err := a.EstablishSession(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 1, sessions.Active())
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, time.Minute)

	got, err := a.ResolveIdentity(ctx, tok.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, a.TerminateSession(ctx, tok.Token))
	assert.Equal(t, 0, sessions.Active())

	got, err = a.ResolveIdentity(ctx, tok.Token)
	require.NoError(t, err)
	assert.Nil(t, got, "revoked session must resolve to anonymous")
}

func TestResolveIdentity_Anonymous(t *testing.T) {
	a, users, _ := newTestAuth()
	ctx := context.Background()
	u, err := a.Register(ctx, "alice", "a@example.com", "pw")
	require.NoError(t, err)

	forged, err := utils.NewSessionToken("other-secret", u.ID, time.Hour)
	require.NoError(t, err)
	unknownSession, err := utils.NewSessionToken("test-secret", u.ID, time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":           "",
		"garbage":         "abc.def.ghi",
		"wrong signature": forged.Token,
		"unknown session": unknownSession.Token,
	} {
		t.Run(name, func(t *testing.T) {
			got, err := a.ResolveIdentity(ctx, token)
			assert.NoError(t, err)
			assert.Nil(t, got)
		})
	}

	t.Run("user removed", func(t *testing.T) {
		tok, err := a.EstablishSession(ctx, u)
		require.NoError(t, err)
		users.Remove(u.ID)

		got, err := a.ResolveIdentity(ctx, tok.Token)
		assert.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestResolveIdentity_StoreFailure(t *testing.T) {
	a, _, sessions := newTestAuth()
	ctx := context.Background()
	u, err := a.Register(ctx, "alice", "a@example.com", "pw")
	require.NoError(t, err)
	tok, err := a.EstablishSession(ctx, u)
	require.NoError(t, err)

	sessions.Err = errors.New("db down")
	_, err = a.ResolveIdentity(ctx, tok.Token)
	assert.Error(t, err)
}

func TestTerminateSession_InvalidTokenIsNoop(t *testing.T) {
	a, _, _ := newTestAuth()
	assert.NoError(t, a.TerminateSession(context.Background(), "not-a-token"))
	assert.NoError(t, a.TerminateSession(context.Background(), ""))
}

func TestRegister_RejectsUnstorableInput(t *testing.T) {
	a, users, _ := newTestAuth()
	ctx := context.Background()

	_, err := a.Register(ctx, "   ", "a@example.com", "pw")
	assert.ErrorIs(t, err, ErrUsernameRequired)
	assert.Equal(t, 0, users.Count(""))

	_, err = a.Register(ctx, "alice", "a@example.com", strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	assert.Equal(t, 0, users.Count("alice"))

	_, err = a.Register(ctx, "alice", "a@example.com", strings.Repeat("x", 72))
	assert.NoError(t, err)
}
