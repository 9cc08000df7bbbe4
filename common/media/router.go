package media

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common"
	"github.com/LexiconIndonesia/media-render-service/common/config"
	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/common/storage"
)

// Router executes a job with the processor matching its payload
type Router struct {
	video *VideoProcessor
	image *ImageProcessor
}

// Deps are the collaborators shared by the processors. Speech and Story may be
// nil, in which case narrated video jobs fail.
type Deps struct {
	FFmpeg     *FFmpeg
	Downloader *Downloader
	Speech     Synthesizer
	Story      StoryWriter
	Storage    storage.StorageService
	TempDir    string
	FontDir    string
}

func NewRouter(d Deps) *Router {
	return &Router{
		video: &VideoProcessor{
			ffmpeg:     d.FFmpeg,
			downloader: d.Downloader,
			speech:     d.Speech,
			story:      d.Story,
			store:      d.Storage,
			tempDir:    d.TempDir,
		},
		image: &ImageProcessor{
			ffmpeg:     d.FFmpeg,
			downloader: d.Downloader,
			store:      d.Storage,
			tempDir:    d.TempDir,
			fontDir:    d.FontDir,
		},
	}
}

// NewRouterFromConfig wires the processors from the Media config section
func NewRouterFromConfig(cfg config.Config, store storage.StorageService) *Router {
	client := &http.Client{Timeout: 10 * time.Minute}

	d := Deps{
		FFmpeg:     NewFFmpeg(cfg.Media.FFmpegPath, ExecRunner{}),
		Downloader: NewDownloader(client, cfg.Media.DownloadConcurrency),
		Storage:    store,
		TempDir:    cfg.Media.TempDir,
		FontDir:    cfg.Media.FontDir,
	}
	if cfg.Media.SpeechAPIKey != "" {
		d.Speech = NewSpeechClient(cfg.Media.SpeechBaseURL, cfg.Media.SpeechAPIKey, client)
	}
	if cfg.Media.StoryURL != "" {
		d.Story = NewStoryClient(cfg.Media.StoryURL, cfg.Media.StoryModelID, cfg.Media.StoryAPIKey, client)
	}
	return NewRouter(d)
}

// Execute renders one job. Every returned error is retryable from the
// caller's point of view.
func (r *Router) Execute(ctx context.Context, job models.Job) (models.Result, error) {
	switch p := job.Payload.(type) {
	case models.VideoRequest:
		return r.video.Process(ctx, job.ID, p)
	case models.ImageRequest:
		return r.image.Process(ctx, job.ID, p)
	default:
		return models.Result{}, fmt.Errorf("%w: %T", common.ErrUnsupportedJobKind, job.Payload)
	}
}
