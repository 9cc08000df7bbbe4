package media

import (
	"fmt"
	"math"
	"strings"

	"github.com/LexiconIndonesia/media-render-service/common/models"
)

// BuildSRT emits one cue per word using the character alignment
func BuildSRT(a Alignment) string {
	n := min(len(a.Characters), len(a.Starts), len(a.Ends))

	var (
		b     strings.Builder
		cue   = 1
		start = 0
	)
	for i := 0; i < n; i++ {
		if a.Characters[i] != " " && i != n-1 {
			continue
		}
		word := strings.TrimSpace(strings.Join(a.Characters[start:i+1], ""))
		if word != "" {
			fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", cue, formatSRTTime(a.Starts[start]), formatSRTTime(a.Ends[i]), word)
			cue++
		}
		start = i + 1
	}
	return b.String()
}

// formatSRTTime renders seconds as HH:MM:SS,mmm
func formatSRTTime(seconds float64) string {
	ms := int64(math.Round(math.Max(seconds, 0) * 1000))
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

const assHeader = `[Script Info]
ScriptType: v4.00+
PlayResX: 1080
PlayResY: 1920
WrapStyle: 0

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Titan One,76,&H00FFFFFF,&H000000FF,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,2,2,2,10,10,120,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// BuildASS renders the transcript as an ASS script with a per-word pop animation
func BuildASS(segments []models.TranscriptSegment) string {
	var b strings.Builder
	b.WriteString(assHeader)
	for i, s := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s", formatASSTime(s.Start), formatASSTime(s.End), animateWords(s.Text))
	}
	return b.String()
}

// formatASSTime renders seconds as H:MM:SS.cc
func formatASSTime(seconds float64) string {
	cs := int64(math.Floor(math.Max(seconds, 0)*100 + 1e-6))
	return fmt.Sprintf("%d:%02d:%02d.%02d", cs/360_000, cs/6000%60, cs/100%60, cs%100)
}

// animateWords upper-cases each word and staggers a scale bounce across them
func animateWords(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return " "
	}
	for i, w := range words {
		delay := i * 300
		words[i] = fmt.Sprintf(`{\t(%d,%d,\fscx120\fscy120)\t(%d,%d,\fscx100\fscy100)}%s`,
			delay, delay+500, delay+300, delay+600, strings.ToUpper(w))
	}
	return strings.Join(words, " ")
}

// slideDuration spreads the transcript span evenly over the images. Without a
// usable transcript every image gets the default duration.
func slideDuration(segments []models.TranscriptSegment, images int) float64 {
	if images < 1 {
		return 0
	}
	total := 0.0
	for _, s := range segments {
		total = math.Max(total, s.End)
	}
	if total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		total = defaultSlideSeconds * float64(images)
	}
	return total / float64(images)
}
