// Package storage defines the object-store collaborator contract used by the
// generation pipeline and a local-disk implementation of it.
package storage

import (
	"context"
	"time"
)

// UploadOptions controls a single object upload.
type UploadOptions struct {
	ContentType string
	Upsert      bool
}

// ObjectStore is the narrow contract the pipeline needs from object storage.
// Buckets are namespaced per concern: preview PDFs, final PDFs, reference
// images, and WebP page previews.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, opts UploadOptions) error
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	Exists(ctx context.Context, bucket, path string) (bool, error)
	CreateSignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}
