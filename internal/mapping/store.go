package mapping

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/gcs"
	"github.com/dvloznov/budget-sync/internal/logger"
)

// Store loads and saves a MappingSet.
type Store interface {
	Load(ctx context.Context) (*domain.MappingSet, error)
	Save(ctx context.Context, set *domain.MappingSet) error
}

// FileStore keeps the mapping in a local JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the file. A missing file yields an empty set.
func (s *FileStore) Load(ctx context.Context) (*domain.MappingSet, error) {
	log := logger.FromContext(ctx)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", s.path).Msg("Mapping file not found, starting empty")
		return domain.NewMappingSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("FileStore.Load: %w", err)
	}
	set, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("FileStore.Load: %s: %w", s.path, err)
	}
	return set, nil
}

// Save writes the file through a temporary file and a rename.
func (s *FileStore) Save(ctx context.Context, set *domain.MappingSet) error {
	data, err := Encode(set)
	if err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".mapping-*.json")
	if err != nil {
		return fmt.Errorf("FileStore.Save: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("FileStore.Save: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("FileStore.Save: closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("FileStore.Save: replacing %s: %w", s.path, err)
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("path", s.path).Int("accounts", len(set.Mappings)).Msg("Saved mapping")
	return nil
}

// GCSStore keeps the mapping in a Cloud Storage object.
type GCSStore struct {
	objects gcs.ObjectStore
	uri     string
}

// NewGCSStore returns a store for the object at uri.
func NewGCSStore(objects gcs.ObjectStore, uri string) (*GCSStore, error) {
	if _, _, err := gcs.ParseURI(uri); err != nil {
		return nil, fmt.Errorf("NewGCSStore: %w", err)
	}
	return &GCSStore{objects: objects, uri: uri}, nil
}

// Load downloads and decodes the object. A missing object yields an empty set.
func (s *GCSStore) Load(ctx context.Context) (*domain.MappingSet, error) {
	log := logger.FromContext(ctx)
	data, err := s.objects.Read(ctx, s.uri)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		log.Warn().Str("object", gcs.BaseName(s.uri)).Msg("Mapping object not found, starting empty")
		return domain.NewMappingSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("GCSStore.Load: %w", err)
	}
	set, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.Load: %s: %w", s.uri, err)
	}
	return set, nil
}

// Save encodes and uploads set.
func (s *GCSStore) Save(ctx context.Context, set *domain.MappingSet) error {
	data, err := Encode(set)
	if err != nil {
		return fmt.Errorf("GCSStore.Save: %w", err)
	}
	if err := s.objects.Write(ctx, s.uri, data); err != nil {
		return fmt.Errorf("GCSStore.Save: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("object", gcs.BaseName(s.uri)).Int("accounts", len(set.Mappings)).Msg("Saved mapping")
	return nil
}

// UpdateTimestamps loads the stored mapping, stamps dest watermarks for the
// given accounts and saves it. Do-not-sync links are left alone.
func UpdateTimestamps(ctx context.Context, store Store, dest domain.Destination, accountIDs []string, now time.Time) (int, error) {
	set, err := store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("UpdateTimestamps: %w", err)
	}
	n := set.StampWatermarks(dest, accountIDs, now)
	if n == 0 {
		return 0, nil
	}
	if err := store.Save(ctx, set); err != nil {
		return 0, fmt.Errorf("UpdateTimestamps: %w", err)
	}
	return n, nil
}
