package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modelhub-backend/internal/models"
	"modelhub-backend/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user with this username already exists")
	ErrEmailAlreadyExists = errors.New("user with this email already exists")
	ErrOptimisticLock     = errors.New("data has been modified by another user, please refresh and try again")
	ErrLastAdmin          = errors.New("cannot remove the last active administrator")
	ErrCannotDeleteSelf   = errors.New("cannot delete your own account")
	ErrInvalidRole        = errors.New("invalid role")
)

const userCacheTTL = time.Hour

// CreateUserParams is used by registration and by admins creating accounts.
type CreateUserParams struct {
	Username string
	Email    string
	FullName string
	Password string
	Role     models.UserRole
	IsActive bool
}

type UserService struct {
	db     *gorm.DB
	rdb    *redis.Client
	logger *zap.Logger
}

func NewUserService(db *gorm.DB, rdb *redis.Client, log *zap.Logger) *UserService {
	return &UserService{db: db, rdb: rdb, logger: logger.OrGlobal(log).Named("users")}
}

func userCacheKey(id string) string { return fmt.Sprintf("user:%s", id) }

func (s *UserService) FindUserByID(ctx context.Context, userID string) (models.User, error) {
	cacheKey := userCacheKey(userID)
	if s.rdb != nil {
		val, err := s.rdb.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var user models.User
			if err := json.Unmarshal(val, &user); err == nil {
				return user, nil
			}
		}
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		return user, err
	}

	// The password hash is excluded from JSON, so cached users carry none.
	if s.rdb != nil {
		if data, err := json.Marshal(user); err == nil {
			s.rdb.Set(ctx, cacheKey, data, userCacheTTL)
		}
	}
	return user, nil
}

func (s *UserService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUsers retrieves a paginated list of users.
func (s *UserService) FindUsers(ctx context.Context, page, limit int) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	offset := (page - 1) * limit

	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := s.db.WithContext(ctx).Order("created_at asc").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// CreateUser hashes the password and inserts the account. The very first
// account always becomes an admin.
func (s *UserService) CreateUser(ctx context.Context, p CreateUserParams) (*models.User, error) {
	if p.Role == "" {
		p.Role = models.RoleUser
	}
	if !p.Role.Valid() {
		return nil, ErrInvalidRole
	}

	db := s.db.WithContext(ctx)
	var existing int64
	if err := db.Model(&models.User{}).Where("username = ?", p.Username).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrUserAlreadyExists
	}
	if err := db.Model(&models.User{}).Where("email = ?", strings.ToLower(p.Email)).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrEmailAlreadyExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var userCount int64
	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		return nil, err
	}
	if userCount == 0 && p.Role != models.RoleSuperAdmin {
		p.Role = models.RoleAdmin
		p.IsActive = true
	}

	user := &models.User{
		Username: p.Username,
		Email:    strings.ToLower(p.Email),
		FullName: p.FullName,
		Password: string(hashedPassword),
		Role:     p.Role,
		IsActive: p.IsActive,
		Version:  1,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// UpdateUser updates a user with optimistic locking and selective fields.
func (s *UserService) UpdateUser(ctx context.Context, id string, updates map[string]interface{}, operator string) (*models.User, error) {
	if role, ok := updates["role"]; ok {
		r := models.UserRole(fmt.Sprint(role))
		if !r.Valid() {
			return nil, ErrInvalidRole
		}
		updates["role"] = r
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var user models.User
	if err := tx.First(&user, "id = ?", id).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if user.IsAdmin() && removesAdmin(updates) {
		if err := ensureAnotherAdmin(tx, user.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if password, ok := updates["password"].(string); ok && password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		updates["password"] = string(hashedPassword)
	}

	currentVersion := user.Version
	updates["version"] = currentVersion + 1

	result := tx.Model(&user).Where("version = ?", currentVersion).Updates(updates)
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, ErrOptimisticLock
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)

	fields := make([]string, 0, len(updates))
	for k := range updates {
		if k != "password" {
			fields = append(fields, k)
		}
	}
	s.logger.Info("user updated", zap.String("user_id", id), zap.String("operator", operator), zap.Strings("fields", fields))

	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes an account. Operators cannot delete themselves and the
// last active admin cannot be deleted.
func (s *UserService) DeleteUser(ctx context.Context, id, operatorID string) error {
	if id == operatorID {
		return ErrCannotDeleteSelf
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if user.IsAdmin() {
			if err := ensureAnotherAdmin(tx, user.ID); err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.APIKey{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&user).Error; err != nil {
			return err
		}
		s.invalidate(ctx, id)
		return nil
	})
}

// EnsureAdmin creates the bootstrap administrator if it does not exist yet.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	if password == "" {
		s.logger.Warn("ADMIN_PASSWORD not set, skipping admin bootstrap")
		return nil
	}
	_, err := s.FindByUsername(ctx, username)
	if err == nil {
		s.logger.Info("admin user already exists", zap.String("username", username))
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	_, err = s.CreateUser(ctx, CreateUserParams{
		Username: username,
		Email:    email,
		FullName: "Administrator",
		Password: password,
		Role:     models.RoleSuperAdmin,
		IsActive: true,
	})
	return err
}

func (s *UserService) invalidate(ctx context.Context, id string) {
	if s.rdb != nil {
		s.rdb.Del(ctx, userCacheKey(id))
	}
}

func removesAdmin(updates map[string]interface{}) bool {
	if role, ok := updates["role"].(models.UserRole); ok && role != models.RoleAdmin && role != models.RoleSuperAdmin {
		return true
	}
	if active, ok := updates["is_active"].(bool); ok && !active {
		return true
	}
	return false
}

func ensureAnotherAdmin(tx *gorm.DB, excludeID string) error {
	var others int64
	err := tx.Model(&models.User{}).
		Where("role IN ? AND is_active = ? AND id <> ?", []models.UserRole{models.RoleAdmin, models.RoleSuperAdmin}, true, excludeID).
		Count(&others).Error
	if err != nil {
		return err
	}
	if others == 0 {
		return ErrLastAdmin
	}
	return nil
}
