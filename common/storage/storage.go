package storage

import (
	"context"
	"io"
	"time"
)

// StorageService stores rendered media. Implementations are bound to one
// bucket or directory at construction.
type StorageService interface {
	// StreamUpload uploads from a reader and returns the URL clients fetch the object from
	StreamUpload(ctx context.Context, objectName string, reader io.Reader, contentType string) (string, error)

	// Delete deletes an object
	Delete(ctx context.Context, objectName string) error

	// GetSignedURL returns a time-limited URL for an object
	GetSignedURL(ctx context.Context, objectName string, expires time.Duration) (string, error)
}
