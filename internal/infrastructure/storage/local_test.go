package storage_test

import (
	"context"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fablepress/fablepress-go/internal/infrastructure/security"
	"github.com/fablepress/fablepress-go/internal/infrastructure/storage"
)

const testSecret = "test-secret"

func newStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	return storage.NewLocalStore(t.TempDir(), "http://localhost:8080", testSecret)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	data := []byte("%PDF-1.4 fake")
	if err := store.Upload(ctx, "storybook-previews", "proj1/preview.pdf", data, storage.UploadOptions{ContentType: "application/pdf", Upsert: true}); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	got, err := store.Download(ctx, "storybook-previews", "proj1/preview.pdf")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded bytes differ from uploaded bytes")
	}

	exists, err := store.Exists(ctx, "storybook-previews", "proj1/preview.pdf")
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v; want true, nil", exists, err)
	}

	exists, err = store.Exists(ctx, "storybook-previews", "proj1/missing.pdf")
	if err != nil || exists {
		t.Errorf("Exists for missing object = %v, %v; want false, nil", exists, err)
	}
}

func TestUploadWithoutUpsertRejectsOverwrite(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.Upload(ctx, "b", "obj", []byte("one"), storage.UploadOptions{}); err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	if err := store.Upload(ctx, "b", "obj", []byte("two"), storage.UploadOptions{}); err == nil {
		t.Fatal("expected overwrite without upsert to fail")
	}
	if err := store.Upload(ctx, "b", "obj", []byte("two"), storage.UploadOptions{Upsert: true}); err != nil {
		t.Fatalf("upsert overwrite failed: %v", err)
	}
}

func TestUploadRejectsPathEscape(t *testing.T) {
	store := newStore(t)
	err := store.Upload(context.Background(), "b", "../../etc/passwd", []byte("x"), storage.UploadOptions{Upsert: true})
	if err == nil {
		t.Fatal("expected path escape to be rejected")
	}
}

func TestCreateSignedURLCarriesValidToken(t *testing.T) {
	store := newStore(t)
	url, err := store.CreateSignedURL(context.Background(), "storybook-finals", "proj1/final.pdf", time.Hour)
	if err != nil {
		t.Fatalf("CreateSignedURL failed: %v", err)
	}
	if !strings.Contains(url, "/files/storybook-finals/proj1/final.pdf?token=") {
		t.Fatalf("unexpected URL shape: %s", url)
	}

	token := url[strings.Index(url, "token=")+len("token="):]
	bucket, path, err := security.ValidateArtifactToken(token, testSecret)
	if err != nil {
		t.Fatalf("token did not validate: %v", err)
	}
	if bucket != "storybook-finals" || path != "proj1/final.pdf" {
		t.Errorf("token scope wrong: %s/%s", bucket, path)
	}

	if _, _, err := security.ValidateArtifactToken(token, "wrong-secret"); err == nil {
		t.Error("token validated with wrong secret")
	}
}

func TestDownloadCancelledContext(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Download(ctx, "b", "obj"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
