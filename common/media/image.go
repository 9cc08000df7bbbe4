package media

import (
	"context"
	"fmt"
	"os"

	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/common/storage"
)

// ImageProcessor renders image jobs: a crossfaded slideshow timed to the
// narration with animated subtitles
type ImageProcessor struct {
	ffmpeg     *FFmpeg
	downloader *Downloader
	store      storage.StorageService
	tempDir    string
	fontDir    string
}

func (p *ImageProcessor) Process(ctx context.Context, jobID string, req models.ImageRequest) (models.Result, error) {
	ws, err := newWorkspace(p.tempDir, jobID)
	if err != nil {
		return models.Result{}, err
	}
	defer ws.Close()

	images := make([]string, len(req.Images))
	audio := ws.path("audio" + extOf(req.AudioURL, ".mp3"))
	err = ws.stage(ctx, "download", 10, func() error {
		items := make([]download, 0, len(req.Images)+1)
		for i, img := range req.Images {
			images[i] = ws.path(fmt.Sprintf("image-%03d%s", i, extOf(img.URL, ".jpg")))
			items = append(items, download{URL: img.URL, Path: images[i]})
		}
		items = append(items, download{URL: req.AudioURL, Path: audio})
		return p.downloader.FetchAll(ctx, items)
	})
	if err != nil {
		return models.Result{}, err
	}

	ass := ws.path("subtitles.ass")
	err = ws.stage(ctx, "subtitles", 30, func() error {
		return os.WriteFile(ass, []byte(BuildASS(req.Transcript)), 0o600)
	})
	if err != nil {
		return models.Result{}, err
	}

	slideshow := ws.path("slideshow.mp4")
	err = ws.stage(ctx, "slideshow", 50, func() error {
		return p.ffmpeg.Slideshow(ctx, images, slideDuration(req.Transcript, len(images)), slideshow)
	})
	if err != nil {
		return models.Result{}, err
	}

	final := ws.path("final.mp4")
	err = ws.stage(ctx, "mux", 70, func() error {
		return p.ffmpeg.MuxAudioWithASS(ctx, slideshow, audio, ass, p.fontDir, final)
	})
	if err != nil {
		return models.Result{}, err
	}

	var result models.Result
	err = ws.stage(ctx, "upload", 90, func() error {
		result, err = ws.uploadResult(ctx, p.store, jobID, final)
		return err
	})
	if err != nil {
		return models.Result{}, err
	}
	return ws.finish(result), nil
}
