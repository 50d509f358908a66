// Package daemonctl talks to a running render worker over its HTTP API.
package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storyreel/internal/config"
	"storyreel/internal/daemon"
	"storyreel/internal/queue"
)

// ErrUnavailable reports that no daemon answered at the configured address.
var ErrUnavailable = errors.New("storyreel daemon is not reachable")

// ErrNotFound is returned when the daemon has no job with the requested id.
var ErrNotFound = errors.New("job not found")

// Client calls the daemon API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New builds a client for baseURL. A bare host:port is treated as http.
func New(baseURL, token string, httpClient *http.Client) (*Client, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, errors.New("daemon address is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse daemon address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{base: base, token: strings.TrimSpace(token), http: httpClient}, nil
}

// FromConfig targets the local daemon described by cfg.API. Wildcard bind
// addresses are dialed on loopback.
func FromConfig(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	return New(dialAddress(cfg.API.Bind), cfg.API.Token, nil)
}

func dialAddress(bind string) string {
	bind = strings.TrimSpace(bind)
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return bind
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// Status returns the daemon runtime summary.
func (c *Client) Status(ctx context.Context) (daemon.Status, error) {
	var status daemon.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &status)
	return status, err
}

// Jobs lists queue jobs, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error) {
	values := url.Values{}
	for _, status := range statuses {
		values.Add("status", string(status))
	}
	var payload daemon.JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", values, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

// Job fetches one job by queue id.
func (c *Client) Job(ctx context.Context, id int64) (*queue.Job, error) {
	var job queue.Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+strconv.FormatInt(id, 10), nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Submit posts a render request to /process.
func (c *Client) Submit(ctx context.Context, req daemon.ProcessRequest) (daemon.ProcessResponse, error) {
	var resp daemon.ProcessResponse
	err := c.do(ctx, http.MethodPost, "/process", nil, req, &resp)
	return resp, err
}

// Health calls the unauthenticated liveness endpoint.
func (c *Client) Health(ctx context.Context) (daemon.HealthResponse, error) {
	var resp daemon.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w at %s: %v", ErrUnavailable, c.base.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	var payload daemon.ProcessResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	message := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, message)
}
