package media

import (
	"strings"
	"testing"

	"github.com/LexiconIndonesia/media-render-service/common/models"
)

func TestBuildSRTOneCuePerWord(t *testing.T) {
	a := Alignment{
		Characters: []string{"H", "i", " ", " ", "y", "o", "u"},
		Starts:     []float64{0, 0.1, 0.2, 0.25, 0.3, 0.4, 0.5},
		Ends:       []float64{0.1, 0.2, 0.25, 0.3, 0.4, 0.5, 1.25},
	}

	want := "1\n00:00:00,000 --> 00:00:00,250\nHi\n\n" +
		"2\n00:00:00,300 --> 00:00:01,250\nyou\n\n"
	if got := BuildSRT(a); got != want {
		t.Errorf("Unexpected SRT:\n%q\nwant\n%q", got, want)
	}
}

func TestBuildSRTToleratesShortTimingArrays(t *testing.T) {
	a := Alignment{
		Characters: []string{"a", "b", "c"},
		Starts:     []float64{0, 1},
		Ends:       []float64{1, 2},
	}
	if got := BuildSRT(a); !strings.Contains(got, "ab") {
		t.Errorf("Expected truncated word, got %q", got)
	}
}

func TestFormatTimes(t *testing.T) {
	tests := []struct {
		seconds float64
		srt     string
		ass     string
	}{
		{0, "00:00:00,000", "0:00:00.00"},
		{1.5, "00:00:01,500", "0:00:01.50"},
		{61.25, "00:01:01,250", "0:01:01.25"},
		{3725.07, "01:02:05,070", "1:02:05.07"},
		{-3, "00:00:00,000", "0:00:00.00"},
	}
	for _, tt := range tests {
		if got := formatSRTTime(tt.seconds); got != tt.srt {
			t.Errorf("formatSRTTime(%v) = %s, want %s", tt.seconds, got, tt.srt)
		}
		if got := formatASSTime(tt.seconds); got != tt.ass {
			t.Errorf("formatASSTime(%v) = %s, want %s", tt.seconds, got, tt.ass)
		}
	}
}

func TestBuildASSAnimatesWords(t *testing.T) {
	out := BuildASS([]models.TranscriptSegment{
		{Text: "hello big world", Start: 0, End: 1.5},
		{Text: "again", Start: 1.5, End: 2},
	})

	if !strings.HasPrefix(out, "[Script Info]") || !strings.Contains(out, "PlayResY: 1920") {
		t.Fatalf("Missing header:\n%s", out)
	}
	if !strings.Contains(out, "Style: Default,Titan One,76,") {
		t.Error("Missing default style")
	}

	lines := strings.Split(out, "\n")
	var dialogues []string
	for _, l := range lines {
		if strings.HasPrefix(l, "Dialogue:") {
			dialogues = append(dialogues, l)
		}
	}
	if len(dialogues) != 2 {
		t.Fatalf("Expected 2 dialogue lines, got %d", len(dialogues))
	}

	first := dialogues[0]
	if !strings.HasPrefix(first, "Dialogue: 0,0:00:00.00,0:00:01.50,Default,,0,0,0,,") {
		t.Errorf("Unexpected dialogue prefix: %s", first)
	}
	if !strings.Contains(first, `{\t(0,500,\fscx120\fscy120)\t(300,600,\fscx100\fscy100)}HELLO`) {
		t.Errorf("First word not animated: %s", first)
	}
	if !strings.Contains(first, `{\t(600,1100,\fscx120\fscy120)\t(900,1200,\fscx100\fscy100)}WORLD`) {
		t.Errorf("Third word delay wrong: %s", first)
	}
}

func TestSlideDuration(t *testing.T) {
	transcript := []models.TranscriptSegment{
		{Text: "a", Start: 0, End: 4},
		{Text: "b", Start: 4, End: 12},
	}
	if got := slideDuration(transcript, 3); got != 4 {
		t.Errorf("Expected 4s per image, got %v", got)
	}
	if got := slideDuration(nil, 2); got != defaultSlideSeconds {
		t.Errorf("Expected default duration, got %v", got)
	}
	if got := slideDuration(transcript, 0); got != 0 {
		t.Errorf("Expected 0 for no images, got %v", got)
	}
}
