package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modelhub-backend/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// Storage holds model artifacts under slash separated object keys.
type Storage interface {
	// Put stores r under key and returns the location recorded on the model.
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	Exists(ctx context.Context, location string) (bool, error)
	Delete(ctx context.Context, location string) error
}

// NewStorage picks the backend named by STORAGE_TYPE.
func NewStorage(cfg *config.Config) (Storage, error) {
	switch cfg.StorageType {
	case "", "local":
		return NewLocalStorage(cfg.StorageDir)
	case "oss":
		if !cfg.OSSEnabled() {
			return nil, errors.New("STORAGE_TYPE=oss requires OSS_ENDPOINT, OSS_BUCKET_NAME and OSS_ACCESS_KEY_ID")
		}
		return NewOSSStorage(cfg.OSSEndpoint, cfg.OSSAccessKeyID, cfg.OSSAccessKeySecret, cfg.OSSBucketName)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
}

// ArtifactKey builds models/<model>/<yyyy>/<mm>/<uuid><ext> for an upload.
func ArtifactKey(modelID, filename string, now time.Time) string {
	return fmt.Sprintf("models/%s/%d/%02d/%s%s",
		modelID, now.Year(), now.Month(), uuid.New().String(), strings.ToLower(filepath.Ext(filename)))
}

type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

func (s *LocalStorage) path(location string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(location))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid storage key %q", location)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return key, nil
}

func (s *LocalStorage) Exists(ctx context.Context, location string) (bool, error) {
	p, err := s.path(location)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *LocalStorage) Delete(ctx context.Context, location string) error {
	p, err := s.path(location)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// OSSStorage keeps artifacts in an Aliyun OSS bucket.
type OSSStorage struct {
	bucket *oss.Bucket
}

func NewOSSStorage(endpoint, accessKeyID, accessKeySecret, bucketName string) (*OSSStorage, error) {
	client, err := oss.New(endpoint, accessKeyID, accessKeySecret, oss.Timeout(60, 120))
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}
	return &OSSStorage{bucket: bucket}, nil
}

func (s *OSSStorage) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := s.bucket.PutObject(key, r, oss.WithContext(ctx)); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	return key, nil
}

func (s *OSSStorage) Exists(ctx context.Context, location string) (bool, error) {
	return s.bucket.IsObjectExist(location, oss.WithContext(ctx))
}

func (s *OSSStorage) Delete(ctx context.Context, location string) error {
	return s.bucket.DeleteObject(location, oss.WithContext(ctx))
}
