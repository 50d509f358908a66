// Package imagegen renders clip images through an OpenAI-compatible image
// endpoint serving FLUX.1-dev.
//
// The positive and negative prompts travel in the prompt field joined by "|",
// and diffusion parameters are sent as extra JSON fields, which is how
// OpenAI-compatible diffusion servers accept them.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"storyreel/internal/services"
)

const (
	defaultModel   = "flux.1-dev"
	defaultTimeout = 300 * time.Second
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Config captures the image server settings.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Width          int
	Height         int
	Steps          int
	GuidanceScale  float64
	TimeoutSeconds int
}

// Client generates PNG images.
type Client struct {
	cfg Config
	api openai.Client
}

// NewClient constructs an image client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.Width <= 0 {
		cfg.Width = 1080
	}
	if cfg.Height <= 0 {
		cfg.Height = 1080
	}
	if httpClient == nil {
		timeout := defaultTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "none"
	}
	return &Client{
		cfg: cfg,
		api: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(0),
		),
	}
}

// Size returns the configured output size as WIDTHxHEIGHT.
func (c *Client) Size() string {
	return fmt.Sprintf("%dx%d", c.cfg.Width, c.cfg.Height)
}

// Generate renders one image and returns it PNG encoded.
func (c *Client) Generate(ctx context.Context, prompt, negative string) ([]byte, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, services.Wrap(services.ErrValidation, "imagegen", "generate", "prompt required", nil)
	}
	if c.cfg.BaseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "imagegen", "generate", "base url required", nil)
	}
	if negative = strings.TrimSpace(negative); negative != "" {
		prompt = prompt + "|" + negative
	}

	params := openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(c.cfg.Model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(c.Size()),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	}
	var opts []option.RequestOption
	if c.cfg.Steps > 0 {
		opts = append(opts, option.WithJSONSet("step", c.cfg.Steps))
	}
	if c.cfg.GuidanceScale > 0 {
		opts = append(opts, option.WithJSONSet("cfg_scale", c.cfg.GuidanceScale))
	}

	resp, err := c.api.Images.Generate(ctx, params, opts...)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, services.Wrap(services.StatusMarker(apiErr.StatusCode), "imagegen", "generate",
				fmt.Sprintf("status %d: %s", apiErr.StatusCode, strings.TrimSpace(apiErr.Message)), err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "imagegen", "generate", "request failed", err)
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, services.Wrap(services.ErrExternalTool, "imagegen", "generate", "response has no image", nil)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "imagegen", "decode", "image is not valid base64", err)
	}
	return toPNG(data)
}

// toPNG passes PNG data through and re-encodes other decodable formats.
func toPNG(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, pngMagic) {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "imagegen", "decode", "unrecognized image format", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
