package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"modelhub-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newModelService(t *testing.T) *ModelService {
	t.Helper()
	_, rdb := setupTestRedis(t)
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewModelService(setupTestDB(t), rdb, storage, 0, zaptest.NewLogger(t))
}

func createTestModel(t *testing.T, svc *ModelService, name, owner string) *models.Model {
	t.Helper()
	m := &models.Model{
		Name:      name,
		Framework: models.FrameworkONNX,
		Version:   "1.0.0",
		Status:    models.ModelStatusUploading,
		OwnerID:   owner,
	}
	require.NoError(t, svc.Create(context.Background(), m))
	return m
}

func TestCreateModelValidatesParameters(t *testing.T) {
	svc := newModelService(t)
	err := svc.Create(context.Background(), &models.Model{
		Name:       "bad",
		OwnerID:    "u1",
		Parameters: models.JSON{"request_header": "not a list"},
	})
	assert.Error(t, err)
}

func TestListModels(t *testing.T) {
	svc := newModelService(t)
	ctx := context.Background()
	createTestModel(t, svc, "resnet", "u1")
	createTestModel(t, svc, "bert", "u1")
	public := createTestModel(t, svc, "whisper", "u2")
	require.NoError(t, svc.db.Model(public).Update("is_public", true).Error)

	items, total, err := svc.List(ctx, ModelFilter{OwnerID: "u1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = svc.List(ctx, ModelFilter{Name: "res"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "resnet", items[0].Name)

	items, _, err = svc.List(ctx, ModelFilter{PublicOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, public.ID, items[0].ID)

	_, total, err = svc.List(ctx, ModelFilter{Framework: "pytorch"})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestGetModelCachesUntilUpdate(t *testing.T) {
	svc := newModelService(t)
	ctx := context.Background()
	m := createTestModel(t, svc, "resnet", "u1")

	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "resnet", got.Name)

	require.NoError(t, svc.db.Model(&models.Model{}).Where("id = ?", m.ID).Update("name", "stale").Error)
	got, err = svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "resnet", got.Name)

	updated, err := svc.Update(ctx, m.ID, map[string]interface{}{"description": "image classifier"})
	require.NoError(t, err)
	assert.Equal(t, "stale", updated.Name)

	got, err = svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "image classifier", got.Description)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestUploadArtifact(t *testing.T) {
	svc := newModelService(t)
	ctx := context.Background()
	m := createTestModel(t, svc, "resnet", "u1")

	content := "model-weights"
	updated, err := svc.UploadArtifact(ctx, m.ID, "weights.ONNX", strings.NewReader(content))
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, models.ModelStatusUploaded, updated.Status)
	assert.EqualValues(t, len(content), updated.FileSize)
	assert.Equal(t, hex.EncodeToString(sum[:]), updated.FileHash)
	assert.True(t, strings.HasSuffix(updated.FilePath, ".onnx"))

	exists, err := svc.Storage().Exists(ctx, updated.FilePath)
	require.NoError(t, err)
	assert.True(t, exists)

	// A new upload replaces the old artifact.
	again, err := svc.UploadArtifact(ctx, m.ID, "weights.onnx", strings.NewReader("v2"))
	require.NoError(t, err)
	exists, err = svc.Storage().Exists(ctx, updated.FilePath)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, svc.SetStatus(ctx, m.ID, models.ModelStatusDeployed, nil))
	_, err = svc.UploadArtifact(ctx, m.ID, "weights.onnx", strings.NewReader("v3"))
	assert.ErrorIs(t, err, ErrInvalidModelState)

	require.NoError(t, svc.Delete(ctx, m.ID))
	exists, err = svc.Storage().Exists(ctx, again.FilePath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestModelVersions(t *testing.T) {
	svc := newModelService(t)
	ctx := context.Background()
	m := createTestModel(t, svc, "resnet", "u1")

	v1, err := svc.CreateVersion(ctx, m.ID, CreateVersionParams{Version: "1.1.0", ChangeLog: "first"})
	require.NoError(t, err)
	v2, err := svc.CreateVersion(ctx, m.ID, CreateVersionParams{Version: "1.2.0", ChangeLog: "second"})
	require.NoError(t, err)

	versions, err := svc.ListVersions(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	first, err := svc.GetVersion(ctx, m.ID, v1.ID)
	require.NoError(t, err)
	assert.False(t, first.IsCurrent)
	second, err := svc.GetVersion(ctx, m.ID, v2.ID)
	require.NoError(t, err)
	assert.True(t, second.IsCurrent)

	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", got.Version)

	_, err = svc.GetVersion(ctx, m.ID, "missing")
	assert.ErrorIs(t, err, ErrModelVersionNotFound)
	_, err = svc.CreateVersion(ctx, "missing", CreateVersionParams{Version: "1"})
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestSetStatusMissingModel(t *testing.T) {
	svc := newModelService(t)
	assert.ErrorIs(t, svc.SetStatus(context.Background(), "missing", models.ModelStatusValid, nil), ErrModelNotFound)
}
