package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable. Credentials are checked by
// RequireOrchestrator and RequireWorker since each process needs a different set.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateImageGen(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// RequireOrchestrator reports missing settings needed to generate a story and
// trigger a render.
func (c *Config) RequireOrchestrator() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return missingSecret("llm.api_key", "DEEPSEEK_API_KEY")
	}
	if strings.TrimSpace(c.TTS.APIKey) == "" {
		return missingSecret("tts.api_key", "ELEVENLABS_API_KEY")
	}
	if c.Storage.Backend == StorageS3 && c.Storage.Bucket == "" {
		return missingSecret("storage.bucket", "S3_BUCKET")
	}
	if strings.TrimSpace(c.Pod.APIKey) == "" {
		return missingSecret("pod.api_key", "RUNPOD_API_KEY")
	}
	if strings.TrimSpace(c.Pod.PodID) == "" {
		return missingSecret("pod.pod_id", "RUNPOD_POD_ID")
	}
	return nil
}

// RequireWorker reports missing settings needed to render videos. Pod stop
// credentials are optional; the worker logs a warning when they are absent.
func (c *Config) RequireWorker() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return missingSecret("llm.api_key", "DEEPSEEK_API_KEY")
	}
	if strings.TrimSpace(c.ImageGen.BaseURL) == "" {
		return errors.New("imagegen.base_url must be set")
	}
	return nil
}

// CanStopPod reports whether the worker has credentials to stop its own pod.
func (c *Config) CanStopPod() bool {
	return c.Pod.StopAPIKey != "" && c.Pod.StopPodID != ""
}

func missingSecret(key, env string) error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/storyreel/config.toml"
	}
	return fmt.Errorf("%s is required. Set %s env var or edit %s (create with 'storyreel config init')", key, env, defaultPath)
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageS3:
	case StorageLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported (use s3 or local)", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateDispatch() error {
	if err := ensurePositiveMap(map[string]int{
		"dispatch.start_attempts":          c.Dispatch.StartAttempts,
		"dispatch.start_interval_seconds":  c.Dispatch.StartIntervalSeconds,
		"dispatch.ready_checks":            c.Dispatch.ReadyChecks,
		"dispatch.ready_interval_seconds":  c.Dispatch.ReadyIntervalSeconds,
		"dispatch.request_timeout_seconds": c.Dispatch.RequestTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Dispatch.WarmupSeconds < 0 {
		return errors.New("dispatch.warmup_seconds must be >= 0")
	}
	if !strings.Contains(c.Pod.WorkerURLPattern, "{pod_id}") {
		return errors.New("pod.worker_url_pattern must contain {pod_id}")
	}
	return nil
}

func (c *Config) validateImageGen() error {
	if err := ensurePositiveMap(map[string]int{
		"imagegen.width":           c.ImageGen.Width,
		"imagegen.height":          c.ImageGen.Height,
		"imagegen.steps":           c.ImageGen.Steps,
		"imagegen.timeout_seconds": c.ImageGen.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.ImageGen.GuidanceScale <= 0 {
		return errors.New("imagegen.guidance_scale must be positive")
	}
	return nil
}

func (c *Config) validateRender() error {
	if err := ensurePositiveMap(map[string]int{
		"render.width":                 c.Render.Width,
		"render.height":                c.Render.Height,
		"render.fps":                   c.Render.FPS,
		"render.font_size":             c.Render.FontSize,
		"render.placeholder_font_size": c.Render.PlaceholderFont,
	}); err != nil {
		return err
	}
	if c.Render.ZoomFactor < 1 {
		return errors.New("render.zoom_factor must be >= 1")
	}
	if c.Render.TailPadSeconds < 0 {
		return errors.New("render.tail_pad_seconds must be >= 0")
	}
	if c.Render.CaptionFadeSeconds < 0 {
		return errors.New("render.caption_fade_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	spec := strings.TrimSpace(c.Schedule.Cron)
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("schedule.cron %q is invalid: %w", spec, err)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"llm.timeout_seconds":           c.LLM.TimeoutSeconds,
		"tts.timeout_seconds":           c.TTS.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Script.DurationSeconds < 0 {
		return errors.New("script.duration_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console, json, or auto)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
