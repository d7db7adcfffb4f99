package services

import (
	"context"
	"testing"
	"time"

	"modelhub-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type authFixture struct {
	users *UserService
	keys  *APIKeyService
	auth  *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	db := setupTestDB(t)
	_, rdb := setupTestRedis(t)
	log := zaptest.NewLogger(t)
	users := NewUserService(db, rdb, log)
	keys := NewAPIKeyService(db, log)
	return &authFixture{
		users: users,
		keys:  keys,
		auth:  NewAuthService(users, keys, NewTokenDenylist(rdb), log),
	}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	user, err := f.auth.Register(ctx, "alice", "alice@example.com", "Alice", "password123")
	require.NoError(t, err)

	token, loggedIn, err := f.auth.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, loggedIn.ID)

	_, _, err = f.auth.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.auth.Login(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	authed, err := f.auth.AuthenticateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
}

func TestLoginInactiveUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	createTestUser(t, f.users, "admin", models.RoleAdmin)

	_, err := f.users.CreateUser(ctx, CreateUserParams{
		Username: "frozen",
		Email:    "frozen@example.com",
		Password: "password123",
		IsActive: false,
	})
	require.NoError(t, err)

	_, _, err = f.auth.Login(ctx, "frozen", "password123")
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	createTestUser(t, f.users, "alice", models.RoleUser)

	token, _, err := f.auth.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, token))
	_, err = f.auth.AuthenticateToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = f.auth.AuthenticateToken(ctx, "not-a-jwt")
	assert.Error(t, err)
}

func TestAuthenticateAPIKey(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := createTestUser(t, f.users, "alice", models.RoleUser)

	_, raw, err := f.keys.Create(ctx, CreateAPIKeyParams{Name: "ci", UserID: user.ID})
	require.NoError(t, err)

	authed, err := f.auth.AuthenticateAPIKey(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	_, err = f.auth.AuthenticateAPIKey(ctx, "bogus")
	assert.ErrorIs(t, err, ErrAPIKeyInvalid)
}

func TestTokenDenylist(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	d := NewTokenDenylist(rdb)
	ctx := context.Background()

	ok, err := d.Contains(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Add(ctx, "tok", time.Minute))
	ok, err = d.Contains(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = d.Contains(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Add(ctx, "expired", -time.Second))
	ok, _ = d.Contains(ctx, "expired")
	assert.False(t, ok)
}
