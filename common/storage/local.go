package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var errOutsideRoot = errors.New("object name escapes storage root")

// LocalStorage writes objects below a directory. It stands in for GCS in
// development.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &LocalStorage{root: abs}, nil
}

func (l *LocalStorage) path(objectName string) (string, error) {
	p := filepath.Join(l.root, filepath.FromSlash(objectName))
	if p != l.root && !strings.HasPrefix(p, l.root+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return p, nil
}

func (l *LocalStorage) StreamUpload(ctx context.Context, objectName string, reader io.Reader, _ string) (string, error) {
	p, err := l.path(objectName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	tmp := p + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to close writer: %w", err)
	}
	if err := ctx.Err(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, p); err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return (&url.URL{Scheme: "file", Path: p}).String(), nil
}

func (l *LocalStorage) Delete(_ context.Context, objectName string) error {
	p, err := l.path(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", objectName, err)
	}
	return nil
}

// GetSignedURL returns the file URL; local files need no signature
func (l *LocalStorage) GetSignedURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	p, err := l.path(objectName)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: p}).String(), nil
}
