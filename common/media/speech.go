package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// ErrUnknownVoice is returned when a voice name is not in the catalog
var ErrUnknownVoice = errors.New("unknown voice")

// Voice is one entry of the speech provider's premade voice catalog
type Voice struct {
	ID     string `json:"voice_id"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
}

var voices = []Voice{
	{"EXAVITQu4vr4xnSDxMaL", "Sarah", "female"},
	{"FGY2WhTYpPnrIDTdsKH5", "Laura", "female"},
	{"IKne3meq5aSn9XLyUdCD", "Charlie", "male"},
	{"JBFqnCBsd6RMkjVDRZzb", "George", "male"},
	{"TX3LPaxmHKxFdv7VOQHJ", "Liam", "male"},
	{"XB0fDUnXU5powFXDhCwa", "Charlotte", "female"},
	{"cgSgspJ2msm6clMCkdW9", "Jessica", "female"},
	{"pFZP5JQG7iQjIQuC4Bku", "Lily", "female"},
	{"cjVigY5qzO86Huf0OWal", "Eric", "male"},
	{"iP95p4xoKVk53GoZ742B", "Chris", "male"},
	{"nPczCjzI2devNBz1zQrb", "Brian", "male"},
	{"onwK4e9ZLuTAKqWW03F9", "Daniel", "male"},
	{"pqHfZKP75CvOlQylNhV4", "Bill", "male"},
	{"Xb7hH8MSUJpSbSDYk0k2", "Alice", "female"},
	{"XrExE9yKIg1WjnnlVkGX", "Matilda", "female"},
}

// Voices returns the catalog
func Voices() []Voice {
	return append([]Voice(nil), voices...)
}

// LookupVoice resolves a voice by name, case-insensitively
func LookupVoice(name string) (Voice, bool) {
	return lo.Find(voices, func(v Voice) bool {
		return strings.EqualFold(v.Name, name)
	})
}

// Alignment gives the start and end time, in seconds, of every character
// of the synthesized text
type Alignment struct {
	Characters []string  `json:"characters"`
	Starts     []float64 `json:"character_start_times_seconds"`
	Ends       []float64 `json:"character_end_times_seconds"`
}

// Speech is synthesized audio and its alignment
type Speech struct {
	Audio     []byte
	Alignment Alignment
}

// SpeechClient calls the text-to-speech with-timestamps endpoint
type SpeechClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewSpeechClient(baseURL, apiKey string, client *http.Client) *SpeechClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &SpeechClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type speechRequest struct {
	Text            string  `json:"text"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type speechResponse struct {
	AudioBase64 string    `json:"audio_base64"`
	Alignment   Alignment `json:"alignment"`
}

// Synthesize turns text into speech with the named voice
func (c *SpeechClient) Synthesize(ctx context.Context, text, voiceName string) (Speech, error) {
	voice, ok := LookupVoice(voiceName)
	if !ok {
		return Speech{}, fmt.Errorf("%w: %q", ErrUnknownVoice, voiceName)
	}

	body, err := json.Marshal(speechRequest{
		Text:            text,
		Stability:       0.5,
		SimilarityBoost: 0.75,
		UseSpeakerBoost: true,
	})
	if err != nil {
		return Speech{}, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/with-timestamps", c.baseURL, voice.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Speech{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Speech{}, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Speech{}, fmt.Errorf("speech request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out speechResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Speech{}, fmt.Errorf("decode speech response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(out.AudioBase64)
	if err != nil {
		return Speech{}, fmt.Errorf("decode speech audio: %w", err)
	}

	return Speech{Audio: audio, Alignment: out.Alignment}, nil
}
