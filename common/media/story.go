package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var errEmptyStory = errors.New("story response has no text")

// StoryClient asks a hosted text model for a short narration script
type StoryClient struct {
	url    string
	apiKey string
	client *http.Client
}

// NewStoryClient targets baseURL + modelID
func NewStoryClient(baseURL, modelID, apiKey string, client *http.Client) *StoryClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &StoryClient{
		url:    baseURL + modelID,
		apiKey: apiKey,
		client: client,
	}
}

type storyResponse struct {
	Result struct {
		Response string `json:"response"`
	} `json:"result"`
}

func storyPrompt(topic, start, end string) string {
	return fmt.Sprintf(
		"generate a short story like 200 characters from %s and let the story start with %s and end with %s and it should be in one part",
		topic, start, end)
}

// Generate writes a short story about topic that opens with start and closes with end
func (c *StoryClient) Generate(ctx context.Context, topic, start, end string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": storyPrompt(topic, start, end)})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("story request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("story request: status %d", resp.StatusCode)
	}

	var out storyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode story response: %w", err)
	}

	story := strings.TrimSpace(out.Result.Response)
	if story == "" {
		return "", errEmptyStory
	}
	return story, nil
}
