package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/common/storage"
	"github.com/rs/zerolog/log"
)

const resultContentType = "video/mp4"

// workspace is the scratch directory of one attempt. It also records how
// long every stage took.
type workspace struct {
	dir     string
	started time.Time
	timings map[string]int64
}

func newWorkspace(root, jobID string) (*workspace, error) {
	dir, err := os.MkdirTemp(root, "render-"+jobID+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &workspace{dir: dir, started: time.Now(), timings: make(map[string]int64)}, nil
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

// stage runs fn, records its duration and reports percent once it succeeds
func (w *workspace) stage(ctx context.Context, name string, percent int, fn func() error) error {
	start := time.Now()
	err := fn()
	w.timings[name] = time.Since(start).Milliseconds()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ReportProgress(ctx, percent)
	return nil
}

func (w *workspace) Close() {
	if err := os.RemoveAll(w.dir); err != nil {
		log.Warn().Err(err).Str("dir", w.dir).Msg("Failed to remove workspace")
	}
}

// objectName is the storage key of a job's rendered video
func objectName(jobID string, now time.Time) string {
	return fmt.Sprintf("%d-%s-final-video.mp4", now.UnixMilli(), jobID)
}

// uploadResult stores the rendered file. An upload that lands after the
// attempt was abandoned is deleted again so that no result outlives its attempt.
func (w *workspace) uploadResult(ctx context.Context, store storage.StorageService, jobID, file string) (models.Result, error) {
	f, err := os.Open(file)
	if err != nil {
		return models.Result{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.Result{}, err
	}

	name := objectName(jobID, time.Now())
	location, err := store.StreamUpload(ctx, name, f, resultContentType)
	if err != nil {
		return models.Result{}, fmt.Errorf("upload %s: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if derr := store.Delete(cleanupCtx, name); derr != nil {
			log.Warn().Err(derr).Str("jobID", jobID).Str("object", name).Msg("Failed to delete orphaned upload")
		}
		return models.Result{}, err
	}

	return models.Result{
		ObjectName:  name,
		URL:         location,
		ContentType: resultContentType,
		Size:        info.Size(),
	}, nil
}

func (w *workspace) finish(r models.Result) models.Result {
	r.DurationMs = time.Since(w.started).Milliseconds()
	r.Timings = w.timings
	return r
}

// extOf picks a file extension from a download URL
func extOf(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
		return ext
	}
	return fallback
}
