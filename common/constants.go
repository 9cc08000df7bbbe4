package common

const (
	// AppName is the name of the application
	AppName = "media-render-service"

	// Stream and subject names for the render workload
	RenderStreamName   = "MEDIA_RENDER"
	RenderSubject      = "media.render.jobs"
	RenderConsumerName = "media-render-workers"

	// Header carrying the caller-supplied priority hint (0-10)
	PriorityHeader = "Media-Priority"

	// MaxPriority is the upper bound of the priority range
	MaxPriority = 10
)

// ServiceMode selects which halves of the service a process runs
type ServiceMode string

const (
	// ModeAll runs the HTTP intake and the dispatcher in one process
	ModeAll ServiceMode = "all"
	// ModeAPI runs only the HTTP intake
	ModeAPI ServiceMode = "api"
	// ModeWorker runs only the dispatcher
	ModeWorker ServiceMode = "worker"
)

// RunsAPI reports whether the mode serves HTTP
func (m ServiceMode) RunsAPI() bool {
	return m == ModeAll || m == ModeAPI
}

// RunsWorker reports whether the mode consumes jobs
func (m ServiceMode) RunsWorker() bool {
	return m == ModeAll || m == ModeWorker
}
