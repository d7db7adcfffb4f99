package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"modelhub-backend/internal/models"
	"modelhub-backend/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrModelNotFound        = errors.New("model not found")
	ErrModelVersionNotFound = errors.New("model version not found")
	ErrInvalidModelState    = errors.New("model is not in a state that allows this operation")
)

const DefaultModelCacheTTL = time.Minute

type ModelFilter struct {
	OwnerID    string
	Name       string
	Status     string
	Framework  string
	PublicOnly bool
	Page       int
	Limit      int
}

type CreateVersionParams struct {
	Version   string
	ChangeLog string
	FilePath  string
	FileSize  int64
	FileHash  string
}

// ModelService manages registered models, their artifacts and versions.
type ModelService struct {
	db       *gorm.DB
	rdb      *redis.Client
	storage  Storage
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewModelService(db *gorm.DB, rdb *redis.Client, storage Storage, cacheTTL time.Duration, log *zap.Logger) *ModelService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultModelCacheTTL
	}
	return &ModelService{
		db:       db,
		rdb:      rdb,
		storage:  storage,
		cacheTTL: cacheTTL,
		logger:   logger.OrGlobal(log).Named("models"),
		now:      time.Now,
	}
}

func (s *ModelService) Storage() Storage {
	return s.storage
}

func modelCacheKey(id string) string { return fmt.Sprintf("model:detail:%s", id) }

func (s *ModelService) Create(ctx context.Context, model *models.Model) error {
	if err := models.ValidateModelParameters(model.Parameters); err != nil {
		return err
	}
	if model.Status == "" {
		model.Status = models.ModelStatusUploading
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	s.logger.Info("model created", zap.String("model_id", model.ID), zap.String("owner_id", model.OwnerID))
	return nil
}

// List retrieves a paginated list of models with filtering.
func (s *ModelService) List(ctx context.Context, filter ModelFilter) ([]models.Model, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}

	var items []models.Model
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Model{})
	if filter.OwnerID != "" {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.PublicOnly {
		query = query.Where("is_public = ?", true)
	}
	if filter.Name != "" {
		query = query.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Framework != "" {
		query = query.Where("framework = ?", filter.Framework)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("created_at desc").Limit(filter.Limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Get reads the model detail through the redis cache.
func (s *ModelService) Get(ctx context.Context, id string) (*models.Model, error) {
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, modelCacheKey(id)).Bytes(); err == nil {
			var cached models.Model
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("model cache read failed", zap.String("model_id", id), zap.Error(err))
		}
	}

	model, err := s.load(ctx, s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if s.rdb != nil {
		if raw, err := json.Marshal(model); err == nil {
			s.rdb.Set(ctx, modelCacheKey(id), raw, s.cacheTTL)
		}
	}
	return model, nil
}

// Update applies selected fields. parameters are validated before writing.
func (s *ModelService) Update(ctx context.Context, id string, updates map[string]interface{}) (*models.Model, error) {
	if params, ok := updates["parameters"]; ok {
		p, ok := params.(models.JSON)
		if !ok {
			return nil, errors.New("parameters must be a JSON object")
		}
		if err := models.ValidateModelParameters(p); err != nil {
			return nil, err
		}
	}

	model, err := s.load(ctx, s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(model).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	s.invalidate(ctx, id)
	return s.load(ctx, s.db.WithContext(ctx), id)
}

// Delete removes the model, its versions and its stored artifact.
func (s *ModelService) Delete(ctx context.Context, id string) error {
	var model *models.Model
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if model, err = s.load(ctx, tx, id); err != nil {
			return err
		}
		if err := tx.Where("model_id = ?", id).Delete(&models.ModelVersion{}).Error; err != nil {
			return err
		}
		return tx.Delete(model).Error
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)

	if model.FilePath != "" && s.storage != nil {
		if err := s.storage.Delete(ctx, model.FilePath); err != nil {
			s.logger.Warn("artifact delete failed", zap.String("model_id", id), zap.Error(err))
		}
	}
	s.logger.Info("model deleted", zap.String("model_id", id))
	return nil
}

// SetStatus moves a model to status and optionally sets extra columns.
func (s *ModelService) SetStatus(ctx context.Context, id string, status models.ModelStatus, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": status}
	for k, v := range extra {
		updates[k] = v
	}
	result := s.db.WithContext(ctx).Model(&models.Model{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrModelNotFound
	}
	s.invalidate(ctx, id)
	s.logger.Info("model status changed", zap.String("model_id", id), zap.String("status", string(status)))
	return nil
}

// UploadArtifact streams r into storage, recording size and sha256, and
// marks the model uploaded.
func (s *ModelService) UploadArtifact(ctx context.Context, id, filename string, r io.Reader) (*models.Model, error) {
	model, err := s.load(ctx, s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if model.Status == models.ModelStatusDeploying || model.Status == models.ModelStatusDeployed {
		return nil, ErrInvalidModelState
	}

	hash := sha256.New()
	counter := &countingWriter{}
	tee := io.TeeReader(r, io.MultiWriter(hash, counter))

	location, err := s.storage.Put(ctx, ArtifactKey(id, filename, s.now()), tee)
	if err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}

	previous := model.FilePath
	err = s.SetStatus(ctx, id, models.ModelStatusUploaded, map[string]interface{}{
		"file_path": location,
		"file_size": counter.n,
		"file_hash": hex.EncodeToString(hash.Sum(nil)),
	})
	if err != nil {
		return nil, err
	}
	if previous != "" && previous != location {
		if err := s.storage.Delete(ctx, previous); err != nil {
			s.logger.Warn("old artifact delete failed", zap.String("model_id", id), zap.Error(err))
		}
	}
	return s.load(ctx, s.db.WithContext(ctx), id)
}

// CreateVersion records a new version and makes it the current one.
func (s *ModelService) CreateVersion(ctx context.Context, modelID string, p CreateVersionParams) (*models.ModelVersion, error) {
	version := &models.ModelVersion{
		ModelID:   modelID,
		Version:   p.Version,
		ChangeLog: p.ChangeLog,
		FilePath:  p.FilePath,
		FileSize:  p.FileSize,
		FileHash:  p.FileHash,
		Status:    models.ModelStatusUploaded,
		IsCurrent: true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := s.load(ctx, tx, modelID)
		if err != nil {
			return err
		}
		if version.FilePath == "" {
			version.FilePath, version.FileSize, version.FileHash = model.FilePath, model.FileSize, model.FileHash
		}
		if err := tx.Model(&models.ModelVersion{}).Where("model_id = ?", modelID).Update("is_current", false).Error; err != nil {
			return err
		}
		if err := tx.Create(version).Error; err != nil {
			return err
		}
		return tx.Model(model).Update("version", p.Version).Error
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, modelID)
	return version, nil
}

func (s *ModelService) ListVersions(ctx context.Context, modelID string) ([]models.ModelVersion, error) {
	var versions []models.ModelVersion
	err := s.db.WithContext(ctx).Where("model_id = ?", modelID).Order("created_at desc").Find(&versions).Error
	return versions, err
}

func (s *ModelService) GetVersion(ctx context.Context, modelID, versionID string) (*models.ModelVersion, error) {
	var version models.ModelVersion
	err := s.db.WithContext(ctx).Where("model_id = ? AND id = ?", modelID, versionID).First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrModelVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (s *ModelService) load(ctx context.Context, db *gorm.DB, id string) (*models.Model, error) {
	var model models.Model
	err := db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, err
	}
	return &model, nil
}

func (s *ModelService) invalidate(ctx context.Context, id string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, modelCacheKey(id)).Err(); err != nil {
		s.logger.Warn("model cache invalidate failed", zap.String("model_id", id), zap.Error(err))
	}
}

type countingWriter struct{ n int64 }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
