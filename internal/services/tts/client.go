// Package tts synthesizes narration through the ElevenLabs text-to-speech API
// and returns the audio together with its per-character timing.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"storyreel/internal/alignment"
	"storyreel/internal/services"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	defaultModel   = "eleven_turbo_v2_5"
	defaultTimeout = 120 * time.Second
)

// VoiceSettings controls the delivery of the synthesized voice.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings returns the narration settings used for every story.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Style: 0.5, UseSpeakerBoost: true}
}

// Config captures the runtime settings required to talk to ElevenLabs.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Voices         []string
	TimeoutSeconds int
}

// Result is one synthesized narration.
type Result struct {
	Audio   []byte
	Timing  alignment.CharacterTiming
	VoiceID string
}

// HTTPDoer describes the HTTP client used by the TTS client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client synthesizes speech with a randomly chosen voice from its pool.
type Client struct {
	cfg      Config
	client   HTTPDoer
	settings VoiceSettings

	mu   sync.Mutex
	rand *rand.Rand
}

// NewClient constructs a TTS client. A nil doer uses an http.Client with the
// configured timeout; a nil source uses the global generator.
func NewClient(cfg Config, doer HTTPDoer, r *rand.Rand) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if doer == nil {
		timeout := defaultTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, client: doer, settings: DefaultVoiceSettings(), rand: r}
}

// PickVoice returns a uniformly chosen voice id from the pool.
func (c *Client) PickVoice() string {
	if len(c.cfg.Voices) == 0 {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var idx int
	if c.rand != nil {
		idx = c.rand.IntN(len(c.cfg.Voices))
	} else {
		idx = rand.IntN(len(c.cfg.Voices))
	}
	return c.cfg.Voices[idx]
}

// Synthesize speaks text with a random voice.
func (c *Client) Synthesize(ctx context.Context, text string) (Result, error) {
	return c.SynthesizeWithVoice(ctx, text, c.PickVoice())
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

type synthesisResponse struct {
	AudioBase64 string                     `json:"audio_base64"`
	Alignment   *alignment.CharacterTiming `json:"alignment"`
}

// SynthesizeWithVoice speaks text with the given voice.
func (c *Client) SynthesizeWithVoice(ctx context.Context, text, voiceID string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, services.Wrap(services.ErrValidation, "tts", "synthesize", "text required", nil)
	}
	if voiceID == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "tts", "synthesize", "no voice configured", nil)
	}
	if c.cfg.APIKey == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "tts", "synthesize", "api key required", nil)
	}

	body, err := json.Marshal(synthesisRequest{Text: text, ModelID: c.cfg.Model, VoiceSettings: c.settings})
	if err != nil {
		return Result{}, fmt.Errorf("encode tts request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/text-to-speech/%s/with-timestamps", c.cfg.BaseURL, url.PathEscape(voiceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "tts", "synthesize", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, services.Wrap(services.StatusMarker(resp.StatusCode), "tts", "synthesize",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var payload synthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "tts", "decode", "invalid response payload", err)
	}
	if payload.AudioBase64 == "" {
		return Result{}, services.Wrap(services.ErrExternalTool, "tts", "decode", "response has no audio", nil)
	}
	audio, err := base64.StdEncoding.DecodeString(payload.AudioBase64)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "tts", "decode", "audio is not valid base64", err)
	}
	var timing alignment.CharacterTiming
	if payload.Alignment != nil {
		timing = *payload.Alignment
	}
	if err := timing.Validate(); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "tts", "decode", "invalid alignment", err)
	}
	return Result{Audio: audio, Timing: timing, VoiceID: voiceID}, nil
}
