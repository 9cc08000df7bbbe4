package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/LexiconIndonesia/media-render-service/common"
	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/common/storage"
)

type fakeSpeech struct {
	text, voice string
}

func (f *fakeSpeech) Synthesize(_ context.Context, text, voice string) (Speech, error) {
	f.text, f.voice = text, voice
	return Speech{
		Audio: []byte("mp3"),
		Alignment: Alignment{
			Characters: []string{"o", "k"},
			Starts:     []float64{0, 0.2},
			Ends:       []float64{0.2, 0.4},
		},
	}, nil
}

type fakeStory struct{ calls int }

func (f *fakeStory) Generate(_ context.Context, topic, start, end string) (string, error) {
	f.calls++
	return fmt.Sprintf("%s %s %s", start, topic, end), nil
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) record(v int) {
	p.mu.Lock()
	p.values = append(p.values, v)
	p.mu.Unlock()
}

func newAssetServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("asset " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T, runner CommandRunner, speech Synthesizer, story StoryWriter) (*Router, string, string) {
	t.Helper()
	tmp := t.TempDir()
	out := t.TempDir()
	store, err := storage.NewLocalStorage(out)
	if err != nil {
		t.Fatal(err)
	}
	return NewRouter(Deps{
		FFmpeg:     NewFFmpeg("ffmpeg", runner),
		Downloader: NewDownloader(nil, 2),
		Speech:     speech,
		Story:      story,
		Storage:    store,
		TempDir:    tmp,
	}), tmp, out
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected workspace to be cleaned up, found %d entries", len(entries))
	}
}

func TestRouterImageJob(t *testing.T) {
	srv := newAssetServer(t)
	runner := &recordingRunner{}
	router, tmp, out := newTestRouter(t, runner, nil, nil)

	progress := &progressLog{}
	ctx := WithProgress(context.Background(), progress.record)

	job := models.NewJob("job-img", 5, models.ImageRequest{
		AudioURL: srv.URL + "/voice.mp3",
		Images: []models.ImageRef{
			{ID: "1", URL: srv.URL + "/one.png"},
			{ID: "2", URL: srv.URL + "/two.png"},
		},
		Transcript: []models.TranscriptSegment{{Text: "hello", Start: 0, End: 8}},
	})

	res, err := router.Execute(ctx, job)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasSuffix(res.ObjectName, "-job-img-final-video.mp4") {
		t.Errorf("Unexpected object name %s", res.ObjectName)
	}
	if res.ContentType != "video/mp4" || res.Size != int64(len("rendered")) {
		t.Errorf("Unexpected result %+v", res)
	}
	for _, stage := range []string{"download", "subtitles", "slideshow", "mux", "upload"} {
		if _, ok := res.Timings[stage]; !ok {
			t.Errorf("Missing timing for %s", stage)
		}
	}
	if !slices.Equal(progress.values, []int{10, 30, 50, 70, 90}) {
		t.Errorf("Unexpected progress %v", progress.values)
	}

	calls := runner.Calls()
	if len(calls) != 2 {
		t.Fatalf("Expected slideshow and mux invocations, got %d", len(calls))
	}
	if n := strings.Count(strings.Join(calls[0], " "), "-loop 1 -t 5 -i"); n != 2 {
		t.Errorf("Expected 4s per image plus transition, got %v", calls[0])
	}

	if _, err := os.Stat(out + "/" + res.ObjectName); err != nil {
		t.Errorf("Uploaded object missing: %v", err)
	}
	assertEmptyDir(t, tmp)
}

func TestRouterVideoJobWithNarration(t *testing.T) {
	srv := newAssetServer(t)
	runner := &recordingRunner{}
	speech := &fakeSpeech{}
	story := &fakeStory{}
	router, tmp, _ := newTestRouter(t, runner, speech, story)

	job := models.NewJob("job-vid", 0, models.VideoRequest{
		URLs:       []string{srv.URL + "/a.mp4", srv.URL + "/b.mp4"},
		Text:       "cats",
		Voice:      "Sarah",
		VideoStart: "once",
		VideoEnd:   "the end",
		Subtitles:  true,
		VoiceOver:  true,
	})

	if _, err := router.Execute(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	if story.calls != 1 || speech.text != "once cats the end" || speech.voice != "Sarah" {
		t.Errorf("Unexpected narration %d %q %q", story.calls, speech.text, speech.voice)
	}
	calls := runner.Calls()
	if len(calls) != 3 {
		t.Fatalf("Expected concat, mux and subtitle invocations, got %d", len(calls))
	}
	if !strings.Contains(argAfter(calls[2], "-vf"), "subtitles=") {
		t.Errorf("Last invocation should burn subtitles: %v", calls[2])
	}
	assertEmptyDir(t, tmp)
}

func TestRouterVideoJobWithScriptSkipsStory(t *testing.T) {
	srv := newAssetServer(t)
	speech := &fakeSpeech{}
	story := &fakeStory{}
	router, _, _ := newTestRouter(t, &recordingRunner{}, speech, story)

	job := models.NewJob("job-script", 0, models.VideoRequest{
		URLs:      []string{srv.URL + "/a.mp4"},
		Text:      "my own words",
		Voice:     "Brian",
		HasScript: true,
		VoiceOver: true,
	})
	if _, err := router.Execute(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if story.calls != 0 || speech.text != "my own words" {
		t.Errorf("Expected the script to be narrated verbatim, story calls %d text %q", story.calls, speech.text)
	}
}

func TestRouterFailedDownloadCleansUp(t *testing.T) {
	srv := newAssetServer(t)
	runner := &recordingRunner{}
	router, tmp, _ := newTestRouter(t, runner, nil, nil)

	job := models.NewJob("job-404", 0, models.VideoRequest{
		URLs:  []string{srv.URL + "/missing.mp4"},
		Text:  "x",
		Voice: "Sarah",
	})
	if _, err := router.Execute(context.Background(), job); err == nil {
		t.Fatal("Expected download failure")
	}
	if len(runner.Calls()) != 0 {
		t.Error("ffmpeg should not run after a failed download")
	}
	assertEmptyDir(t, tmp)
}

func TestRouterFFmpegFailure(t *testing.T) {
	srv := newAssetServer(t)
	boom := errors.New("ffmpeg exited 1")
	router, tmp, _ := newTestRouter(t, &recordingRunner{err: boom}, nil, nil)

	job := models.NewJob("job-ff", 0, models.VideoRequest{
		URLs:  []string{srv.URL + "/a.mp4"},
		Text:  "x",
		Voice: "Sarah",
	})
	if _, err := router.Execute(context.Background(), job); !errors.Is(err, boom) {
		t.Fatalf("Expected ffmpeg error, got %v", err)
	}
	assertEmptyDir(t, tmp)
}

func TestRouterNarrationWithoutSpeechClient(t *testing.T) {
	srv := newAssetServer(t)
	router, _, _ := newTestRouter(t, &recordingRunner{}, nil, nil)

	job := models.NewJob("job-nospeech", 0, models.VideoRequest{
		URLs:      []string{srv.URL + "/a.mp4"},
		Text:      "x",
		Voice:     "Sarah",
		VoiceOver: true,
	})
	if _, err := router.Execute(context.Background(), job); !errors.Is(err, errNarrationUnavailable) {
		t.Fatalf("Expected errNarrationUnavailable, got %v", err)
	}
}

func TestRouterRejectsUnknownPayload(t *testing.T) {
	router, _, _ := newTestRouter(t, &recordingRunner{}, nil, nil)
	if _, err := router.Execute(context.Background(), models.Job{ID: "x"}); !errors.Is(err, common.ErrUnsupportedJobKind) {
		t.Fatalf("Expected ErrUnsupportedJobKind, got %v", err)
	}
}

func TestLookupVoice(t *testing.T) {
	v, ok := LookupVoice("matilda")
	if !ok || v.ID != "XrExE9yKIg1WjnnlVkGX" {
		t.Errorf("Unexpected voice %+v %v", v, ok)
	}
	if _, ok := LookupVoice("Nobody"); ok {
		t.Error("Unknown voice resolved")
	}
	if len(Voices()) != 15 {
		t.Errorf("Expected 15 voices, got %d", len(Voices()))
	}
}
