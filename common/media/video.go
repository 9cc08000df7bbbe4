package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/common/storage"
)

var errNarrationUnavailable = errors.New("narration requested but no speech client is configured")

// Synthesizer turns narration text into speech with character timings
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (Speech, error)
}

// StoryWriter writes a narration script when the request carries only a topic
type StoryWriter interface {
	Generate(ctx context.Context, topic, start, end string) (string, error)
}

// VideoProcessor renders video jobs: concatenated clips with optional
// narration and burned-in subtitles
type VideoProcessor struct {
	ffmpeg     *FFmpeg
	downloader *Downloader
	speech     Synthesizer
	story      StoryWriter
	store      storage.StorageService
	tempDir    string
}

func (p *VideoProcessor) Process(ctx context.Context, jobID string, req models.VideoRequest) (models.Result, error) {
	ws, err := newWorkspace(p.tempDir, jobID)
	if err != nil {
		return models.Result{}, err
	}
	defer ws.Close()

	current := ws.path("concat.mp4")
	err = ws.stage(ctx, "concat", 10, func() error {
		clips := make([]download, len(req.URLs))
		for i, u := range req.URLs {
			clips[i] = download{URL: u, Path: ws.path(fmt.Sprintf("clip-%03d%s", i, extOf(u, ".mp4")))}
		}
		if err := p.downloader.FetchAll(ctx, clips); err != nil {
			return err
		}

		list := ws.path("clips.txt")
		if err := os.WriteFile(list, []byte(concatList(clips)), 0o600); err != nil {
			return err
		}
		return p.ffmpeg.Concat(ctx, list, current, req.AspectRatio)
	})
	if err != nil {
		return models.Result{}, err
	}

	if req.VoiceOver || req.Subtitles {
		if p.speech == nil {
			return models.Result{}, errNarrationUnavailable
		}

		script := req.Text
		err = ws.stage(ctx, "script", 30, func() error {
			if req.HasScript {
				return nil
			}
			if p.story == nil {
				return errors.New("no story client is configured")
			}
			script, err = p.story.Generate(ctx, req.Text, req.VideoStart, req.VideoEnd)
			return err
		})
		if err != nil {
			return models.Result{}, err
		}

		var speech Speech
		err = ws.stage(ctx, "narration", 50, func() error {
			speech, err = p.speech.Synthesize(ctx, script, req.Voice)
			if err != nil {
				return err
			}
			if !req.VoiceOver {
				return nil
			}
			audio := ws.path("narration.mp3")
			if err := os.WriteFile(audio, speech.Audio, 0o600); err != nil {
				return err
			}
			out := ws.path("voiced.mp4")
			if err := p.ffmpeg.MuxAudio(ctx, current, audio, out); err != nil {
				return err
			}
			current = out
			return nil
		})
		if err != nil {
			return models.Result{}, err
		}

		if req.Subtitles {
			err = ws.stage(ctx, "subtitles", 70, func() error {
				srt := ws.path("narration.srt")
				if err := os.WriteFile(srt, []byte(BuildSRT(speech.Alignment)), 0o600); err != nil {
					return err
				}
				out := ws.path("subtitled.mp4")
				if err := p.ffmpeg.BurnSubtitles(ctx, current, srt, out); err != nil {
					return err
				}
				current = out
				return nil
			})
			if err != nil {
				return models.Result{}, err
			}
		}
	}

	var result models.Result
	err = ws.stage(ctx, "upload", 90, func() error {
		result, err = ws.uploadResult(ctx, p.store, jobID, current)
		return err
	})
	if err != nil {
		return models.Result{}, err
	}
	return ws.finish(result), nil
}

// concatList renders the input file of ffmpeg's concat demuxer
func concatList(clips []download) string {
	var b strings.Builder
	for _, c := range clips {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(c.Path, "'", `'\''`))
	}
	return b.String()
}
