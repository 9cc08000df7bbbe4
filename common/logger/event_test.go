package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/LexiconIndonesia/media-render-service/common/models"
)

func TestEventServiceWithoutDatabase(t *testing.T) {
	s := NewEventService(nil)

	// must not panic without queries
	s.Record(context.Background(), models.JobEvent{
		JobID:     "job",
		EventType: models.EventAttemptFailed,
		Attempt:   2,
		Message:   "ffmpeg exited with status 1",
		Details:   map[string]any{"error": "exit status 1"},
	})

	if _, err := s.ListByJob(context.Background(), "job"); !errors.Is(err, ErrEventLogDisabled) {
		t.Errorf("Expected ErrEventLogDisabled, got %v", err)
	}
}
