package gcs

import (
	"context"
)

// ObjectStore reads and writes whole objects addressed by gs:// URIs.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// Read downloads the object bytes. A missing object returns ErrObjectNotExist.
	Read(ctx context.Context, uri string) ([]byte, error)

	// Write replaces the object with data.
	Write(ctx context.Context, uri string, data []byte) error
}
