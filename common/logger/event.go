package logger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ErrEventLogDisabled is returned by ListByJob when no database is configured
var ErrEventLogDisabled = errors.New("job event log is not enabled")

// EventService records job lifecycle events in media_job_event and mirrors
// them to the application log. Without queries it only logs.
type EventService struct {
	queries *repository.Queries
}

// NewEventService creates an event service. queries may be nil.
func NewEventService(queries *repository.Queries) *EventService {
	return &EventService{queries: queries}
}

// Record stores the event. Failures are logged and never returned: the
// event log must not influence job processing.
func (s *EventService) Record(ctx context.Context, event models.JobEvent) {
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		event.ID = id.String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	s.mirror(event)

	if s.queries == nil {
		return
	}

	var details []byte
	if len(event.Details) > 0 {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			log.Error().Err(err).Str("jobID", event.JobID).Msg("Failed to marshal event details")
			details = []byte("{}")
		}
	}

	_, err := s.queries.CreateJobEvent(ctx, repository.CreateJobEventParams{
		ID:        event.ID,
		JobID:     event.JobID,
		EventType: string(event.EventType),
		Attempt:   int32(event.Attempt),
		Message:   event.Message,
		Details:   details,
		CreatedAt: pgtype.Timestamptz{Time: event.CreatedAt, Valid: true},
	})
	if err != nil {
		log.Error().Err(err).
			Str("jobID", event.JobID).
			Str("eventType", string(event.EventType)).
			Msg("Failed to insert job event into database")
	}
}

func (s *EventService) mirror(event models.JobEvent) {
	var entry *zerolog.Event
	switch event.EventType {
	case models.EventJobFailed:
		entry = log.Error()
	case models.EventAttemptFailed, models.EventAttemptTimeout, models.EventJobRejected:
		entry = log.Warn()
	default:
		entry = log.Info()
	}

	entry = entry.
		Str("jobID", event.JobID).
		Str("eventType", string(event.EventType))
	if event.Attempt > 0 {
		entry = entry.Int("attempt", event.Attempt)
	}
	if len(event.Details) > 0 {
		entry = entry.Interface("details", event.Details)
	}
	entry.Msg(event.Message)
}

// ListByJob returns a job's events in the order they happened
func (s *EventService) ListByJob(ctx context.Context, jobID string) ([]models.JobEvent, error) {
	if s.queries == nil {
		return nil, ErrEventLogDisabled
	}

	rows, err := s.queries.ListJobEventsByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return lo.Map(rows, func(r repository.MediaJobEvent, _ int) models.JobEvent {
		ev := models.JobEvent{
			ID:        r.ID,
			JobID:     r.JobID,
			EventType: models.EventType(r.EventType),
			Attempt:   int(r.Attempt),
			Message:   r.Message,
			CreatedAt: r.CreatedAt.Time.UTC(),
		}
		if len(r.Details) > 0 {
			if err := json.Unmarshal(r.Details, &ev.Details); err != nil {
				log.Warn().Err(err).Str("eventID", r.ID).Msg("Failed to decode event details")
			}
		}
		return ev
	}), nil
}
