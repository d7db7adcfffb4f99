package services

import (
	"context"
	"testing"

	"modelhub-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newUserService(t *testing.T) *UserService {
	t.Helper()
	_, rdb := setupTestRedis(t)
	return NewUserService(setupTestDB(t), rdb, zaptest.NewLogger(t))
}

func createTestUser(t *testing.T, svc *UserService, username string, role models.UserRole) *models.User {
	t.Helper()
	user, err := svc.CreateUser(context.Background(), CreateUserParams{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
		Role:     role,
		IsActive: true,
	})
	require.NoError(t, err)
	return user
}

func TestCreateUserFirstBecomesAdmin(t *testing.T) {
	svc := newUserService(t)

	first := createTestUser(t, svc, "alice", models.RoleUser)
	assert.Equal(t, models.RoleAdmin, first.Role)
	assert.True(t, first.IsActive)
	assert.NotEqual(t, "password123", first.Password)

	second := createTestUser(t, svc, "bob", models.RoleUser)
	assert.Equal(t, models.RoleUser, second.Role)
}

func TestCreateUserDuplicates(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()
	createTestUser(t, svc, "alice", models.RoleUser)

	_, err := svc.CreateUser(ctx, CreateUserParams{Username: "alice", Email: "other@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, err = svc.CreateUser(ctx, CreateUserParams{Username: "carol", Email: "ALICE@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)

	_, err = svc.CreateUser(ctx, CreateUserParams{Username: "dave", Email: "dave@example.com", Password: "x", Role: "root"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestFindUserByIDUsesCache(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()
	user := createTestUser(t, svc, "alice", models.RoleUser)

	found, err := svc.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)

	require.NoError(t, svc.db.Model(&models.User{}).Where("id = ?", user.ID).Update("full_name", "changed").Error)
	cached, err := svc.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, cached.FullName)

	_, err = svc.FindUserByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateUser(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()
	admin := createTestUser(t, svc, "admin", models.RoleAdmin)
	user := createTestUser(t, svc, "bob", models.RoleUser)

	updated, err := svc.UpdateUser(ctx, user.ID, map[string]interface{}{"full_name": "Bob", "role": "developer"}, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", updated.FullName)
	assert.Equal(t, models.RoleDeveloper, updated.Role)
	assert.Equal(t, user.Version+1, updated.Version)

	_, err = svc.UpdateUser(ctx, user.ID, map[string]interface{}{"role": "wizard"}, admin.ID)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.UpdateUser(ctx, "missing", map[string]interface{}{"full_name": "x"}, admin.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateUserKeepsLastAdmin(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()
	admin := createTestUser(t, svc, "admin", models.RoleAdmin)

	_, err := svc.UpdateUser(ctx, admin.ID, map[string]interface{}{"role": "user"}, admin.ID)
	assert.ErrorIs(t, err, ErrLastAdmin)
	_, err = svc.UpdateUser(ctx, admin.ID, map[string]interface{}{"is_active": false}, admin.ID)
	assert.ErrorIs(t, err, ErrLastAdmin)

	other := createTestUser(t, svc, "second", models.RoleAdmin)
	updated, err := svc.UpdateUser(ctx, admin.ID, map[string]interface{}{"role": "user"}, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, updated.Role)
}

func TestDeleteUser(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()
	admin := createTestUser(t, svc, "admin", models.RoleAdmin)
	user := createTestUser(t, svc, "bob", models.RoleUser)

	keys := NewAPIKeyService(svc.db, zaptest.NewLogger(t))
	_, _, err := keys.Create(ctx, CreateAPIKeyParams{Name: "ci", UserID: user.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteUser(ctx, admin.ID, admin.ID), ErrCannotDeleteSelf)
	assert.ErrorIs(t, svc.DeleteUser(ctx, admin.ID, user.ID), ErrLastAdmin)

	require.NoError(t, svc.DeleteUser(ctx, user.ID, admin.ID))
	_, err = svc.FindUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	var remaining int64
	require.NoError(t, svc.db.Model(&models.APIKey{}).Where("user_id = ?", user.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	assert.ErrorIs(t, svc.DeleteUser(ctx, "missing", admin.ID), ErrUserNotFound)
}

func TestEnsureAdmin(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "root", "root@example.com", ""))
	_, err := svc.FindByUsername(ctx, "root")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, svc.EnsureAdmin(ctx, "root", "root@example.com", "s3cret"))
	root, err := svc.FindByUsername(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, root.Role)

	require.NoError(t, svc.EnsureAdmin(ctx, "root", "root@example.com", "s3cret"))
}
