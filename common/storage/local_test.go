package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorageUploadAndDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatal(err)
	}

	u, err := s.StreamUpload(ctx, "videos/job-1.mp4", strings.NewReader("mp4 bytes"), "video/mp4")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "videos/job-1.mp4") {
		t.Errorf("Unexpected URL %s", u)
	}

	data, err := os.ReadFile(filepath.Join(dir, "videos", "job-1.mp4"))
	if err != nil || string(data) != "mp4 bytes" {
		t.Fatalf("Unexpected file content %q %v", data, err)
	}

	if err := s.Delete(ctx, "videos/job-1.mp4"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "videos", "job-1.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Error("Object still present after delete")
	}
	if err := s.Delete(ctx, "videos/job-1.mp4"); err != nil {
		t.Errorf("Deleting a missing object should succeed, got %v", err)
	}
}

func TestLocalStorageRejectsEscapes(t *testing.T) {
	s, _ := NewLocalStorage(t.TempDir())
	_, err := s.StreamUpload(context.Background(), "../outside.mp4", strings.NewReader("x"), "video/mp4")
	if !errors.Is(err, errOutsideRoot) {
		t.Errorf("Expected errOutsideRoot, got %v", err)
	}
}

func TestLocalStorageCancelledUploadLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewLocalStorage(dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.StreamUpload(ctx, "a.mp4", strings.NewReader("x"), "video/mp4"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected empty dir, found %d entries", len(entries))
	}
}

func TestPublicURL(t *testing.T) {
	got := publicURL("media-render-videos", "videos/job 1.mp4")
	want := "https://storage.googleapis.com/media-render-videos/videos/job%201.mp4"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}
