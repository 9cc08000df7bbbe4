package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/LexiconIndonesia/media-render-service/common/logger"
	"github.com/LexiconIndonesia/media-render-service/common/media"
	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/common/status"
	"github.com/LexiconIndonesia/media-render-service/common/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// Publisher hands a job to the render queue. *messaging.NatsBroker implements it.
type Publisher interface {
	PublishJob(ctx context.Context, job models.Job) error
}

// EventLister reads a job's event log. *logger.EventService implements it.
type EventLister interface {
	ListByJob(ctx context.Context, jobID string) ([]models.JobEvent, error)
}

type JobHandler struct {
	store     status.Store
	publisher Publisher
	events    EventLister
	router    *chi.Mux
	validate  *validator.Validate
}

// NewJobHandler mounts the job routes. intake middlewares wrap only the
// endpoints that create jobs.
func NewJobHandler(store status.Store, publisher Publisher, events EventLister, intake ...func(http.Handler) http.Handler) *JobHandler {
	router := chi.NewRouter()

	h := &JobHandler{
		store:     store,
		publisher: publisher,
		events:    events,
		router:    router,
		validate:  validator.New(),
	}

	router.Group(func(r chi.Router) {
		r.Use(intake...)
		r.Post("/video", h.handleCreateVideoJob)
		r.Post("/image", h.handleCreateImageJob)
	})
	router.Get("/", h.handleListJobs)
	router.Get("/{jobID}", h.handleGetJob)
	router.Get("/{jobID}/events", h.handleListEvents)
	return h
}

func (h *JobHandler) Router() *chi.Mux {
	return h.router
}

type VideoJobParams struct {
	models.VideoRequest
	Priority int `json:"priority" validate:"min=0,max=10"`
}

type ImageJobParams struct {
	models.ImageRequest
	Priority int `json:"priority" validate:"min=0,max=10"`
}

// @Summary     Queue a video job
// @Description Concatenates clips, optionally narrates and subtitles them
// @Tags        jobs
// @Accept      json
// @Produce     json
// @Param       request body     VideoJobParams true "Video job"
// @Success     202     {object} models.BaseResponse{data=models.JobAcceptedResponse}
// @Failure     400     {object} models.ErrorResponse
// @Failure     429     {object} models.ErrorResponse
// @Failure     500     {object} models.ErrorResponse
// @Security    ApiKeyAuth
// @Router      /jobs/video [post]
func (h *JobHandler) handleCreateVideoJob(w http.ResponseWriter, r *http.Request) {
	var p VideoJobParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := media.LookupVoice(p.Voice); !ok {
		utils.WriteError(w, http.StatusBadRequest, "Unknown voice "+p.Voice)
		return
	}
	if p.AspectRatio == "" {
		p.AspectRatio = "9:16"
	}
	h.enqueue(w, r, p.Priority, p.VideoRequest)
}

// @Summary     Queue an image job
// @Description Builds a slideshow from images, a narration track and its transcript
// @Tags        jobs
// @Accept      json
// @Produce     json
// @Param       request body     ImageJobParams true "Image job"
// @Success     202     {object} models.BaseResponse{data=models.JobAcceptedResponse}
// @Failure     400     {object} models.ErrorResponse
// @Failure     429     {object} models.ErrorResponse
// @Failure     500     {object} models.ErrorResponse
// @Security    ApiKeyAuth
// @Router      /jobs/image [post]
func (h *JobHandler) handleCreateImageJob(w http.ResponseWriter, r *http.Request) {
	var p ImageJobParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.enqueue(w, r, p.Priority, p.ImageRequest)
}

// enqueue records the job as queued and publishes it. The queued record is
// written first so a fast worker never overwrites a later state with it.
func (h *JobHandler) enqueue(w http.ResponseWriter, r *http.Request, priority int, payload models.Payload) {
	id, err := uuid.NewV7()
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to generate job id")
		return
	}
	job := models.NewJob(id.String(), priority, payload)
	logger := log.With().Str("jobID", job.ID).Str("kind", string(job.Kind())).Logger()

	if err := h.store.Upsert(r.Context(), models.QueuedStatus(job.ID)); err != nil {
		logger.Error().Err(err).Msg("Failed to record queued job")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to queue job")
		return
	}

	if err := h.publisher.PublishJob(r.Context(), job); err != nil {
		logger.Error().Err(err).Msg("Failed to publish job")
		if err := h.store.Upsert(context.WithoutCancel(r.Context()), models.FailedStatus(job.ID)); err != nil {
			logger.Error().Err(err).Msg("Failed to mark unpublished job failed")
		}
		utils.WriteError(w, http.StatusInternalServerError, "Failed to queue job")
		return
	}

	logger.Info().Uint8("priority", job.Priority).Msg("Job queued")
	utils.WriteJSON(w, http.StatusAccepted, models.JobAcceptedResponse{Message: "queued", JobID: job.ID})
}

// @Summary Get a job's status
// @Tags    jobs
// @Produce json
// @Param   jobID path     string true "Job ID"
// @Success 200   {object} models.BaseResponse{data=models.JobStatus}
// @Failure 404   {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router  /jobs/{jobID} [get]
func (h *JobHandler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	st, err := h.store.Get(r.Context(), jobID)
	if errors.Is(err, status.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("jobID", jobID).Msg("Failed to read job status")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to read job status")
		return
	}

	utils.WriteJSON(w, http.StatusOK, st)
}

// @Summary List a job's lifecycle events
// @Tags    jobs
// @Produce json
// @Param   jobID path     string true "Job ID"
// @Success 200   {object} models.BaseResponse{data=[]models.JobEvent}
// @Failure 501   {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router  /jobs/{jobID}/events [get]
func (h *JobHandler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if h.events == nil {
		utils.WriteError(w, http.StatusNotImplemented, "Job event log is not enabled")
		return
	}

	events, err := h.events.ListByJob(r.Context(), jobID)
	if errors.Is(err, logger.ErrEventLogDisabled) {
		utils.WriteError(w, http.StatusNotImplemented, "Job event log is not enabled")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("jobID", jobID).Msg("Failed to list job events")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to list job events")
		return
	}

	utils.WriteJSON(w, http.StatusOK, lo.Ternary(events == nil, []models.JobEvent{}, events))
}

// @Summary List job statuses
// @Tags    jobs
// @Produce json
// @Param   state query    string false "queued, processing, completed or failed"
// @Param   page  query    int    false "Page"
// @Param   limit query    int    false "Page size"
// @Success 200   {object} models.BasePaginationResponse{data=[]models.JobStatus}
// @Failure 400   {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router  /jobs [get]
func (h *JobHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	lister, ok := h.store.(status.Lister)
	if !ok {
		utils.WriteError(w, http.StatusNotImplemented, "Listing is not supported by the status backend")
		return
	}

	state := mo.None[models.JobState]()
	if s := r.URL.Query().Get("state"); s != "" {
		js := models.JobState(s)
		if !js.Valid() {
			utils.WriteError(w, http.StatusBadRequest, "Unknown state "+s)
			return
		}
		state = mo.Some(js)
	}

	page, limit, offset := utils.ParsePage(r, 20, 100)
	jobs, total, err := lister.List(r.Context(), state, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list job statuses")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	utils.WritePagination(w, http.StatusOK, lo.Ternary(jobs == nil, []models.JobStatus{}, jobs), page, limit, total)
}
