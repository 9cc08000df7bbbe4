package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// CommandRunner runs an external program and waits for it
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec. The process is killed when ctx ends.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug().Str("cmd", name).Strs("args", args).Msg("Running command")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String(), 512))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Slideshow output geometry and encoding
const (
	slideWidth          = 1080
	slideHeight         = 1920
	slideTransition     = 1.0
	defaultSlideSeconds = 5.0
)

// FFmpeg builds and runs the ffmpeg invocations of each render stage
type FFmpeg struct {
	path   string
	runner CommandRunner
}

func NewFFmpeg(path string, runner CommandRunner) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFmpeg{path: path, runner: runner}
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	return f.runner.Run(ctx, f.path, append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)...)
}

// Concat joins the clips listed in listFile and scales them to the aspect ratio
func (f *FFmpeg) Concat(ctx context.Context, listFile, out, aspectRatio string) error {
	return f.run(ctx, concatArgs(listFile, out, aspectRatio))
}

// MuxAudio replaces the audio track, cutting to the shorter stream
func (f *FFmpeg) MuxAudio(ctx context.Context, video, audio, out string) error {
	return f.run(ctx, []string{
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		out,
	})
}

// BurnSubtitles renders an SRT file into the video
func (f *FFmpeg) BurnSubtitles(ctx context.Context, video, srt, out string) error {
	style := "FontName=DejaVu Sans,FontSize=20,PrimaryColour=&HFFFFFF,OutlineColour=&H000000,BackColour=&H80000000,Bold=1,Alignment=2"
	return f.run(ctx, []string{
		"-i", video,
		"-vf", fmt.Sprintf("subtitles='%s':force_style='%s'", escapeFilterPath(srt), style),
		"-c:v", "libx264",
		"-c:a", "aac",
		out,
	})
}

// Slideshow shows each image for secondsPerImage with a crossfade between them
func (f *FFmpeg) Slideshow(ctx context.Context, images []string, secondsPerImage float64, out string) error {
	return f.run(ctx, slideshowArgs(images, secondsPerImage, out))
}

// MuxAudioWithASS adds the narration and burns the ASS subtitles in one pass
func (f *FFmpeg) MuxAudioWithASS(ctx context.Context, video, audio, ass, fontDir, out string) error {
	filter := fmt.Sprintf("ass='%s'", escapeFilterPath(ass))
	if fontDir != "" {
		filter += fmt.Sprintf(":fontsdir='%s'", escapeFilterPath(fontDir))
	}
	return f.run(ctx, []string{
		"-i", video,
		"-i", audio,
		"-c:v", "libx264",
		"-preset", "medium",
		"-c:a", "aac",
		"-ar", "44100",
		"-map", "0:v",
		"-map", "1:a",
		"-vf", filter,
		out,
	})
}

func concatArgs(listFile, out, aspectRatio string) []string {
	scale := "scale=1080:1920"
	if aspectRatio == "16:9" {
		scale = "scale=1920:1080"
	}
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "23",
		"-vf", scale + ",format=yuv420p",
		out,
	}
}

func slideshowArgs(images []string, secondsPerImage float64, out string) []string {
	var args []string
	for _, img := range images {
		args = append(args, "-loop", "1", "-t", formatSeconds(secondsPerImage+slideTransition), "-i", img)
	}

	parts := make([]string, 0, 2*len(images))
	for i := range images {
		parts = append(parts, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d:(iw-ow)/2:(ih-oh)/2[scaled%d]",
			i, slideWidth, slideHeight, slideWidth, slideHeight, i))
	}

	last := "scaled0"
	for i := 1; i < len(images); i++ {
		next := fmt.Sprintf("trans%d", i)
		if i == len(images)-1 {
			next = "output"
		}
		offset := float64(i)*secondsPerImage - slideTransition
		parts = append(parts, fmt.Sprintf(
			"[%s][scaled%d]xfade=transition=fade:duration=%s:offset=%s[%s]",
			last, i, formatSeconds(slideTransition), formatSeconds(offset), next))
		last = next
	}

	final := "[output]"
	if len(images) == 1 {
		final = "[scaled0]"
	}

	return append(args,
		"-filter_complex", strings.Join(parts, ";"),
		"-map", final,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-b:v", "2.5M",
		"-maxrate", "2.5M",
		"-bufsize", "5M",
		"-profile:v", "main",
		"-level", "4.0",
		out,
	)
}

// escapeFilterPath quotes a path for use inside an ffmpeg filter argument
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.ReplaceAll(p, ":", `\:`)
	return strings.ReplaceAll(p, "'", `'\''`)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
