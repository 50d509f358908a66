// Package runpod controls the GPU pod that hosts the render worker: starting
// and stopping it over the REST API and reading its runtime over GraphQL.
package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storyreel/internal/services"
)

const (
	defaultRESTBaseURL = "https://rest.runpod.io/v1"
	defaultGraphQLURL  = "https://api.runpod.io/graphql"
)

// Config identifies the pod and the API endpoints.
type Config struct {
	APIKey      string
	PodID       string
	RESTBaseURL string
	GraphQLURL  string
}

// HTTPDoer describes the HTTP client used by the pod client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PodStatus is the subset of pod state used to decide readiness.
type PodStatus struct {
	ID               string
	Name             string
	DesiredStatus    string
	LastStatusChange string
	// UptimeSeconds is nil until the container runtime is up.
	UptimeSeconds *int
}

// Ready reports whether the pod runtime is up.
func (s PodStatus) Ready() bool {
	return s.UptimeSeconds != nil
}

// Client controls one pod.
type Client struct {
	cfg    Config
	client HTTPDoer
}

// NewClient constructs a pod client.
func NewClient(cfg Config, client HTTPDoer) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.PodID = strings.TrimSpace(cfg.PodID)
	cfg.RESTBaseURL = strings.TrimRight(strings.TrimSpace(cfg.RESTBaseURL), "/")
	if cfg.RESTBaseURL == "" {
		cfg.RESTBaseURL = defaultRESTBaseURL
	}
	if strings.TrimSpace(cfg.GraphQLURL) == "" {
		cfg.GraphQLURL = defaultGraphQLURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, client: client}
}

// PodID returns the controlled pod id.
func (c *Client) PodID() string {
	return c.cfg.PodID
}

// Configured reports whether both the key and pod id are set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.PodID != ""
}

// Start asks the platform to start the pod.
func (c *Client) Start(ctx context.Context) error {
	return c.lifecycle(ctx, "start")
}

// Stop asks the platform to stop the pod.
func (c *Client) Stop(ctx context.Context) error {
	return c.lifecycle(ctx, "stop")
}

func (c *Client) lifecycle(ctx context.Context, action string) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, "runpod", action, "api key and pod id required", nil)
	}
	endpoint := fmt.Sprintf("%s/pods/%s/%s", c.cfg.RESTBaseURL, url.PathEscape(c.cfg.PodID), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "runpod", action, "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Wrap(services.StatusMarker(resp.StatusCode), "runpod", action,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

const statusQuery = `query { pod(input: {podId: %q}) { id name runtime { uptimeInSeconds } desiredStatus lastStatusChange } }`

type statusResponse struct {
	Data struct {
		Pod *struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Runtime *struct {
				UptimeInSeconds *int `json:"uptimeInSeconds"`
			} `json:"runtime"`
			DesiredStatus    string `json:"desiredStatus"`
			LastStatusChange string `json:"lastStatusChange"`
		} `json:"pod"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Status reads the pod's runtime state.
func (c *Client) Status(ctx context.Context) (PodStatus, error) {
	if !c.Configured() {
		return PodStatus{}, services.Wrap(services.ErrConfiguration, "runpod", "status", "api key and pod id required", nil)
	}
	body, err := json.Marshal(map[string]string{"query": fmt.Sprintf(statusQuery, c.cfg.PodID)})
	if err != nil {
		return PodStatus{}, fmt.Errorf("encode status query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return PodStatus{}, fmt.Errorf("build status request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return PodStatus{}, services.Wrap(services.ErrTransient, "runpod", "status", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PodStatus{}, services.Wrap(services.StatusMarker(resp.StatusCode), "runpod", "status",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}
	var payload statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PodStatus{}, services.Wrap(services.ErrExternalTool, "runpod", "status", "invalid response payload", err)
	}
	if len(payload.Errors) > 0 {
		return PodStatus{}, services.Wrap(services.ErrExternalTool, "runpod", "status", payload.Errors[0].Message, nil)
	}
	pod := payload.Data.Pod
	if pod == nil {
		return PodStatus{}, services.Wrap(services.ErrNotFound, "runpod", "status", "pod not found", nil)
	}
	status := PodStatus{
		ID:               pod.ID,
		Name:             pod.Name,
		DesiredStatus:    pod.DesiredStatus,
		LastStatusChange: pod.LastStatusChange,
	}
	if pod.Runtime != nil {
		status.UptimeSeconds = pod.Runtime.UptimeInSeconds
	}
	return status, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
}
