package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fablepress/fablepress-go/internal/infrastructure/security"
)

// LocalStore implements ObjectStore on the local filesystem, laying objects
// out as {basePath}/{bucket}/{path}. Signed URLs carry a JWT download token
// validated by the file-serving handler.
type LocalStore struct {
	basePath string
	baseURL  string
	secret   string
}

// NewLocalStore creates a filesystem-backed object store.
func NewLocalStore(basePath, baseURL, secret string) *LocalStore {
	return &LocalStore{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		secret:   secret,
	}
}

func (s *LocalStore) objectPath(bucket, path string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(s.basePath, bucket, path))
	if !strings.HasPrefix(cleaned, filepath.Clean(s.basePath)+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: object path %s/%s escapes the store root", bucket, path)
	}
	return cleaned, nil
}

// Upload writes object bytes, creating bucket directories as needed. Without
// Upsert an existing object is an error.
func (s *LocalStore) Upload(ctx context.Context, bucket, path string, data []byte, opts UploadOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := s.objectPath(bucket, path)
	if err != nil {
		return err
	}

	if !opts.Upsert {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("storage: object %s/%s already exists", bucket, path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("storage: creating bucket directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("storage: writing object %s/%s: %w", bucket, path, err)
	}
	return nil
}

// Download reads object bytes.
func (s *LocalStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := s.objectPath(bucket, path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("storage: reading object %s/%s: %w", bucket, path, err)
	}
	return data, nil
}

// Exists reports whether an object is present.
func (s *LocalStore) Exists(ctx context.Context, bucket, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	target, err := s.objectPath(bucket, path)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateSignedURL issues a time-limited download URL for an object.
func (s *LocalStore) CreateSignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, err := security.GenerateArtifactToken(bucket, path, s.secret, ttl)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/files/%s/%s?token=%s", s.baseURL, bucket, path, token), nil
}
