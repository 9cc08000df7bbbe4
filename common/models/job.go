package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// ErrMalformedJob marks a delivery that can never be processed, whatever the retry policy.
var ErrMalformedJob = errors.New("malformed job")

var validate = validator.New()

// JobKind discriminates the payload variant carried by a job
type JobKind string

const (
	// KindVideo concatenates clips and optionally adds narration and subtitles
	KindVideo JobKind = "video"
	// KindImage assembles a slideshow from images, an audio track and a transcript
	KindImage JobKind = "image"
)

// Payload is implemented by every job variant. The set is closed: VideoRequest and ImageRequest.
type Payload interface {
	Kind() JobKind
	isPayload()
}

// VideoRequest is the body of a video job
type VideoRequest struct {
	URLs        []string `json:"urls" validate:"required,min=1,dive,url"`
	Text        string   `json:"text" validate:"required"`
	Voice       string   `json:"voice" validate:"required"`
	HasScript   bool     `json:"has_script"`
	VideoStart  string   `json:"video_start"`
	VideoEnd    string   `json:"video_end"`
	Subtitles   bool     `json:"subtitles"`
	VoiceOver   bool     `json:"voice_over"`
	AspectRatio string   `json:"aspect_ratio" validate:"omitempty,oneof=16:9 9:16"`
}

func (VideoRequest) Kind() JobKind { return KindVideo }
func (VideoRequest) isPayload()    {}

// ImageRef points at one slideshow image
type ImageRef struct {
	ID  string `json:"id"`
	URL string `json:"url" validate:"required,url"`
}

// TranscriptSegment is one timed line of the narration transcript, in seconds
type TranscriptSegment struct {
	Text       string  `json:"text" validate:"required"`
	Start      float64 `json:"start" validate:"gte=0"`
	End        float64 `json:"end" validate:"gtefield=Start"`
	Confidence float64 `json:"confidence"`
}

// ImageRequest is the body of an image job
type ImageRequest struct {
	AudioURL   string              `json:"audio_url" validate:"required,url"`
	Images     []ImageRef          `json:"images" validate:"required,min=1,dive"`
	Transcript []TranscriptSegment `json:"transcript" validate:"dive"`
}

func (ImageRequest) Kind() JobKind { return KindImage }
func (ImageRequest) isPayload()    {}

// Job is the immutable unit of work published to the render stream
type Job struct {
	ID         string
	Priority   uint8
	EnqueuedAt time.Time
	Payload    Payload
}

// NewJob builds a job, clamping the priority hint into the broker's range
func NewJob(id string, priority int, payload Payload) Job {
	return Job{
		ID:         id,
		Priority:   uint8(lo.Clamp(priority, 0, 10)),
		EnqueuedAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Kind returns the payload discriminator
func (j Job) Kind() JobKind {
	if j.Payload == nil {
		return ""
	}
	return j.Payload.Kind()
}

// Validate checks the job id and the payload's field constraints
func (j Job) Validate() error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	if j.Payload == nil {
		return errors.New("job payload is required")
	}
	return validate.Struct(j.Payload)
}

type jobEnvelope struct {
	ID         string          `json:"id"`
	Kind       JobKind         `json:"kind"`
	Priority   uint8           `json:"priority"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the job as a tagged envelope
func (j Job) MarshalJSON() ([]byte, error) {
	if j.Payload == nil {
		return nil, fmt.Errorf("job %s has no payload", j.ID)
	}
	body, err := json.Marshal(j.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jobEnvelope{
		ID:         j.ID,
		Kind:       j.Payload.Kind(),
		Priority:   j.Priority,
		EnqueuedAt: j.EnqueuedAt,
		Payload:    body,
	})
}

// MalformedJobError describes a poison delivery. JobID is set when the id could be salvaged.
type MalformedJobError struct {
	JobID  string
	Reason error
}

func (e *MalformedJobError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("malformed job: %v", e.Reason)
	}
	return fmt.Sprintf("malformed job %s: %v", e.JobID, e.Reason)
}

func (e *MalformedJobError) Unwrap() error { return e.Reason }

func (e *MalformedJobError) Is(target error) bool { return target == ErrMalformedJob }

// DecodeJob parses a delivery body. Every failure is a *MalformedJobError.
func DecodeJob(data []byte) (Job, error) {
	var env jobEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Job{}, &MalformedJobError{JobID: salvageID(data), Reason: err}
	}
	if env.ID == "" {
		return Job{}, &MalformedJobError{Reason: errors.New("missing job id")}
	}

	var payload Payload
	switch env.Kind {
	case KindVideo:
		var p VideoRequest
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Job{}, &MalformedJobError{JobID: env.ID, Reason: fmt.Errorf("video payload: %w", err)}
		}
		payload = p
	case KindImage:
		var p ImageRequest
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Job{}, &MalformedJobError{JobID: env.ID, Reason: fmt.Errorf("image payload: %w", err)}
		}
		payload = p
	default:
		return Job{}, &MalformedJobError{JobID: env.ID, Reason: fmt.Errorf("unknown job kind %q", env.Kind)}
	}

	job := Job{
		ID:         env.ID,
		Priority:   env.Priority,
		EnqueuedAt: env.EnqueuedAt,
		Payload:    payload,
	}
	if err := job.Validate(); err != nil {
		return Job{}, &MalformedJobError{JobID: env.ID, Reason: err}
	}
	return job, nil
}

// salvageID pulls the id out of a body whose envelope failed to decode as a whole
func salvageID(data []byte) string {
	var partial struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return ""
	}
	return partial.ID
}
