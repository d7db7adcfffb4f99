package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"modelhub-backend/internal/models"
	"modelhub-backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAPIKeyNotFound = errors.New("api key not found")
	ErrAPIKeyInvalid  = errors.New("api key is invalid or expired")
)

type CreateAPIKeyParams struct {
	Name      string
	Scopes    string
	ExpiresAt *time.Time
	UserID    string
}

// APIKeyFilter scopes listings. An empty UserID lists every key.
type APIKeyFilter struct {
	UserID string
	Page   int
	Limit  int
}

type APIKeyService struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewAPIKeyService(db *gorm.DB, log *zap.Logger) *APIKeyService {
	return &APIKeyService{db: db, logger: logger.OrGlobal(log).Named("apikeys"), now: time.Now}
}

// GenerateAPIKey returns 32 random bytes hex encoded.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Create stores a new key. The raw key is only ever returned here.
func (s *APIKeyService) Create(ctx context.Context, p CreateAPIKeyParams) (*models.APIKey, string, error) {
	raw, err := GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}
	key := &models.APIKey{
		Name:      p.Name,
		Key:       raw,
		Scopes:    p.Scopes,
		IsActive:  true,
		ExpiresAt: p.ExpiresAt,
		UserID:    p.UserID,
	}
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return nil, "", err
	}
	s.logger.Info("api key created", zap.String("key_id", key.ID), zap.String("user_id", p.UserID))
	return key, raw, nil
}

func (s *APIKeyService) List(ctx context.Context, f APIKeyFilter) ([]models.APIKey, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}

	query := s.db.WithContext(ctx).Model(&models.APIKey{})
	if f.UserID != "" {
		query = query.Where("user_id = ?", f.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var keys []models.APIKey
	err := query.Order("created_at desc").Limit(f.Limit).Offset((f.Page - 1) * f.Limit).Find(&keys).Error
	if err != nil {
		return nil, 0, err
	}
	return keys, total, nil
}

func (s *APIKeyService) Get(ctx context.Context, id string) (*models.APIKey, error) {
	var key models.APIKey
	err := s.db.WithContext(ctx).First(&key, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// Update changes name, scopes, is_active or expires_at.
func (s *APIKeyService) Update(ctx context.Context, id string, updates map[string]interface{}) (*models.APIKey, error) {
	key, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(key).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

func (s *APIKeyService) Deactivate(ctx context.Context, id string) (*models.APIKey, error) {
	return s.Update(ctx, id, map[string]interface{}{"is_active": false})
}

func (s *APIKeyService) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&models.APIKey{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// Verify checks a raw key and records its use.
func (s *APIKeyService) Verify(ctx context.Context, raw string) (*models.APIKey, error) {
	if raw == "" {
		return nil, ErrAPIKeyInvalid
	}
	var key models.APIKey
	err := s.db.WithContext(ctx).Where(&models.APIKey{Key: raw}).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAPIKeyInvalid
	}
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !key.Usable(now) {
		return nil, ErrAPIKeyInvalid
	}

	err = s.db.WithContext(ctx).Model(&key).UpdateColumns(map[string]interface{}{
		"usage_count":  gorm.Expr("usage_count + ?", 1),
		"last_used_at": now,
	}).Error
	if err != nil {
		s.logger.Warn("api key usage update failed", zap.String("key_id", key.ID), zap.Error(err))
	}
	key.UsageCount++
	key.LastUsedAt = &now
	return &key, nil
}
