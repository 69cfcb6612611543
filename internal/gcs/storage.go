package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// ErrObjectNotExist is returned by Read when the object is missing.
var ErrObjectNotExist = storage.ErrObjectNotExist

// ParseURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// BaseName extracts the file name from a GCS URI.
// e.g., "gs://bucket/folder/mapping.json" → "mapping.json"
func BaseName(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// StorageService is the Cloud Storage backed ObjectStore.
// It assumes Application Default Credentials are configured.
type StorageService struct {
	client *storage.Client
}

// NewStorageService creates a storage client.
func NewStorageService(ctx context.Context) (*StorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &StorageService{client: client}, nil
}

// Close releases the underlying client.
func (s *StorageService) Close() error {
	return s.client.Close()
}

func (s *StorageService) Read(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotExist
		}
		return nil, fmt.Errorf("Read: opening object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Read: reading bytes: %w", err)
	}
	return data, nil
}

func (s *StorageService) Write(ctx context.Context, uri string, data []byte) error {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("Write: copying to GCS writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("Write: finalizing upload: %w", err)
	}
	return nil
}
