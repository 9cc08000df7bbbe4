package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/LexiconIndonesia/media-render-service/common/logger"
	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/common/status"
	"github.com/samber/mo"
)

type fakePublisher struct {
	mu   sync.Mutex
	jobs []models.Job
	err  error
}

func (p *fakePublisher) PublishJob(_ context.Context, job models.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type fakeEvents struct {
	events []models.JobEvent
	err    error
}

func (f fakeEvents) ListByJob(_ context.Context, jobID string) ([]models.JobEvent, error) {
	return f.events, f.err
}

type response struct {
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var res response
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("Invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return rec, res
}

const videoBody = `{
	"urls": ["https://cdn.example.com/a.mp4", "https://cdn.example.com/b.mp4"],
	"text": "a cat learns to fly",
	"voice": "Sarah",
	"subtitles": true,
	"voice_over": true,
	"priority": 7
}`

func TestCreateVideoJob(t *testing.T) {
	store := status.NewMemoryStore()
	pub := &fakePublisher{}
	h := NewJobHandler(store, pub, nil)

	rec, res := do(t, h.Router(), http.MethodPost, "/video", videoBody)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var accepted models.JobAcceptedResponse
	if err := json.Unmarshal(res.Data, &accepted); err != nil {
		t.Fatal(err)
	}
	if len(pub.jobs) != 1 || pub.jobs[0].ID != accepted.JobID {
		t.Fatalf("Expected published job %s, got %+v", accepted.JobID, pub.jobs)
	}

	job := pub.jobs[0]
	req, ok := job.Payload.(models.VideoRequest)
	if !ok || job.Kind() != models.KindVideo || job.Priority != 7 {
		t.Fatalf("Unexpected job %+v", job)
	}
	if req.AspectRatio != "9:16" || len(req.URLs) != 2 {
		t.Errorf("Unexpected payload %+v", req)
	}

	st, err := store.Get(context.Background(), accepted.JobID)
	if err != nil || st.State != models.StateQueued {
		t.Errorf("Expected queued status, got %+v %v", st, err)
	}
}

func TestCreateVideoJobValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"no urls", `{"text":"x","voice":"Sarah","urls":[]}`},
		{"bad url", `{"text":"x","voice":"Sarah","urls":["nope"]}`},
		{"unknown voice", `{"text":"x","voice":"Zed","urls":["https://a.example/x.mp4"]}`},
		{"bad aspect", `{"text":"x","voice":"Sarah","urls":["https://a.example/x.mp4"],"aspect_ratio":"4:3"}`},
		{"priority out of range", `{"text":"x","voice":"Sarah","urls":["https://a.example/x.mp4"],"priority":11}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			h := NewJobHandler(status.NewMemoryStore(), pub, nil)

			rec, _ := do(t, h.Router(), http.MethodPost, "/video", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
			if len(pub.jobs) != 0 {
				t.Error("Invalid request was published")
			}
		})
	}
}

func TestCreateImageJob(t *testing.T) {
	pub := &fakePublisher{}
	h := NewJobHandler(status.NewMemoryStore(), pub, nil)

	body := `{
		"audio_url": "https://cdn.example.com/voice.mp3",
		"images": [{"id": "1", "url": "https://cdn.example.com/1.png"}],
		"transcript": [{"text": "hello", "start": 0, "end": 1.5, "confidence": 0.9}]
	}`
	rec, _ := do(t, h.Router(), http.MethodPost, "/image", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(pub.jobs) != 1 || pub.jobs[0].Kind() != models.KindImage {
		t.Fatalf("Unexpected published jobs %+v", pub.jobs)
	}

	bad := `{"audio_url": "https://cdn.example.com/voice.mp3", "images": [],
		"transcript": []}`
	if rec, _ := do(t, h.Router(), http.MethodPost, "/image", bad); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for no images, got %d", rec.Code)
	}
}

func TestCreateJobPublishFailureMarksFailed(t *testing.T) {
	store := status.NewMemoryStore()
	pub := &fakePublisher{err: errors.New("nats down")}
	h := NewJobHandler(store, pub, nil)

	rec, _ := do(t, h.Router(), http.MethodPost, "/video", videoBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}

	jobs, total, err := store.List(context.Background(), mo.None[models.JobState](), 10, 0)
	if err != nil || total != 1 || jobs[0].State != models.StateFailed {
		t.Errorf("Expected one failed job, got %+v (%d, %v)", jobs, total, err)
	}
}

func TestIntakeMiddlewareOnlyWrapsCreation(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{}`))
		})
	}
	store := status.NewMemoryStore()
	store.Upsert(context.Background(), models.QueuedStatus("job-1"))
	h := NewJobHandler(store, &fakePublisher{}, nil, deny)

	if rec, _ := do(t, h.Router(), http.MethodPost, "/video", videoBody); rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected intake to be limited, got %d", rec.Code)
	}
	if rec, _ := do(t, h.Router(), http.MethodGet, "/job-1", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected status lookup to bypass the limiter, got %d", rec.Code)
	}
}

func TestGetJob(t *testing.T) {
	store := status.NewMemoryStore()
	store.Upsert(context.Background(), models.ProcessingStatus("job-1", 50))
	h := NewJobHandler(store, &fakePublisher{}, nil)

	rec, res := do(t, h.Router(), http.MethodGet, "/job-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var st models.JobStatus
	if err := json.Unmarshal(res.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != models.StateProcessing || st.Progress != 50 {
		t.Errorf("Unexpected status %+v", st)
	}

	if rec, _ := do(t, h.Router(), http.MethodGet, "/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestListJobs(t *testing.T) {
	store := status.NewMemoryStore()
	ctx := context.Background()
	store.Upsert(ctx, models.QueuedStatus("job-1"))
	store.Upsert(ctx, models.FailedStatus("job-2"))
	store.Upsert(ctx, models.FailedStatus("job-3"))
	h := NewJobHandler(store, &fakePublisher{}, nil)

	rec, res := do(t, h.Router(), http.MethodGet, "/?state=failed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var jobs []models.JobStatus
	if err := json.Unmarshal(res.Data, &jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 failed jobs, got %d", len(jobs))
	}

	if rec, _ := do(t, h.Router(), http.MethodGet, "/?state=lost", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown state, got %d", rec.Code)
	}
}

func TestListEvents(t *testing.T) {
	events := fakeEvents{events: []models.JobEvent{{JobID: "job-1", EventType: models.EventJobStarted}}}
	h := NewJobHandler(status.NewMemoryStore(), &fakePublisher{}, events)

	rec, res := do(t, h.Router(), http.MethodGet, "/job-1/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got []models.JobEvent
	if err := json.Unmarshal(res.Data, &got); err != nil || len(got) != 1 {
		t.Errorf("Unexpected events %s %v", res.Data, err)
	}

	disabled := NewJobHandler(status.NewMemoryStore(), &fakePublisher{}, fakeEvents{err: logger.ErrEventLogDisabled})
	if rec, _ := do(t, disabled.Router(), http.MethodGet, "/job-1/events", ""); rec.Code != http.StatusNotImplemented {
		t.Errorf("Expected 501, got %d", rec.Code)
	}
}
