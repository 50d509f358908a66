// Package storybank fetches random short stories used as inspiration examples
// in the script prompt.
package storybank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyreel/internal/services"
)

const defaultBaseURL = "https://shortstories-api.onrender.com/"

// Story is one inspiration example.
type Story struct {
	Title string `json:"title"`
	Story string `json:"story"`
	Moral string `json:"moral"`
}

// Complete reports whether every field is populated.
func (s Story) Complete() bool {
	return strings.TrimSpace(s.Title) != "" && strings.TrimSpace(s.Story) != "" && strings.TrimSpace(s.Moral) != ""
}

// HTTPDoer describes the HTTP client used by the story bank.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches random stories.
type Client struct {
	baseURL string
	client  HTTPDoer
	clean   func(string) string
}

// NewClient constructs a story bank client. clean is applied to every field;
// nil leaves fields untouched.
func NewClient(baseURL string, client HTTPDoer, clean func(string) string) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if clean == nil {
		clean = func(s string) string { return s }
	}
	return &Client{baseURL: baseURL, client: client, clean: clean}
}

// RandomStory returns one cleaned story.
func (c *Client) RandomStory(ctx context.Context) (Story, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return Story{}, fmt.Errorf("build story request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return Story{}, services.Wrap(services.ErrTransient, "storybank", "fetch", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Story{}, services.Wrap(services.StatusMarker(resp.StatusCode), "storybank", "fetch",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	var story Story
	if err := json.NewDecoder(resp.Body).Decode(&story); err != nil {
		return Story{}, services.Wrap(services.ErrExternalTool, "storybank", "decode", "invalid story payload", err)
	}
	story = Story{
		Title: c.clean(story.Title),
		Story: c.clean(story.Story),
		Moral: c.clean(story.Moral),
	}
	if !story.Complete() {
		return Story{}, services.Wrap(services.ErrValidation, "storybank", "fetch", "story missing title, story, or moral", nil)
	}
	return story, nil
}
