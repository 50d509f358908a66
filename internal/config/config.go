package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory configuration.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// API contains the render worker's HTTP listener settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// LLM contains chat completion settings used for scripts and clip prompts.
type LLM struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RetryAttempts     int    `toml:"retry_attempts"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// Script contains story planning settings.
type Script struct {
	// DurationSeconds pins the story length; zero picks 32..60s at random.
	DurationSeconds    int    `toml:"duration_seconds"`
	InspirationEnabled bool   `toml:"inspiration_enabled"`
	InspirationURL     string `toml:"inspiration_url"`
	PromptConcurrency  int    `toml:"prompt_concurrency"`
}

// TTS contains speech synthesis settings.
type TTS struct {
	APIKey         string   `toml:"api_key"`
	BaseURL        string   `toml:"base_url"`
	Model          string   `toml:"model"`
	Voices         []string `toml:"voices"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Storage contains object storage settings.
type Storage struct {
	// Backend is "s3" or "local".
	Backend      string `toml:"backend"`
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	Endpoint     string `toml:"endpoint"`
	UsePathStyle bool   `toml:"use_path_style"`
	// Static keys are optional; the AWS default credential chain applies otherwise.
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	LocalDir        string `toml:"local_dir"`
}

// Pod contains GPU pod lifecycle settings. Start credentials are used by the
// orchestrator; stop credentials by the render worker.
type Pod struct {
	APIKey           string `toml:"api_key"`
	PodID            string `toml:"pod_id"`
	StopAPIKey       string `toml:"stop_api_key"`
	StopPodID        string `toml:"stop_pod_id"`
	RESTBaseURL      string `toml:"rest_base_url"`
	GraphQLURL       string `toml:"graphql_url"`
	WorkerURLPattern string `toml:"worker_url_pattern"`
}

// Dispatch contains the bounded waits used when triggering a render.
type Dispatch struct {
	StartAttempts         int `toml:"start_attempts"`
	StartIntervalSeconds  int `toml:"start_interval_seconds"`
	ReadyChecks           int `toml:"ready_checks"`
	ReadyIntervalSeconds  int `toml:"ready_interval_seconds"`
	WarmupSeconds         int `toml:"warmup_seconds"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// ImageGen contains diffusion model settings.
type ImageGen struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	Width          int     `toml:"width"`
	Height         int     `toml:"height"`
	Steps          int     `toml:"steps"`
	GuidanceScale  float64 `toml:"guidance_scale"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Render contains composition settings.
type Render struct {
	FFmpegBinary       string  `toml:"ffmpeg_binary"`
	FFprobeBinary      string  `toml:"ffprobe_binary"`
	FontPath           string  `toml:"font_path"`
	FontSize           int     `toml:"font_size"`
	PlaceholderFont    int     `toml:"placeholder_font_size"`
	Width              int     `toml:"width"`
	Height             int     `toml:"height"`
	FPS                int     `toml:"fps"`
	Preset             string  `toml:"preset"`
	VideoBitrate       string  `toml:"video_bitrate"`
	ZoomFactor         float64 `toml:"zoom_factor"`
	TailPadSeconds     float64 `toml:"tail_pad_seconds"`
	CaptionFadeSeconds float64 `toml:"caption_fade_seconds"`
	KeepWorkFiles      bool    `toml:"keep_work_files"`
}

// Schedule contains the cron schedule for unattended generation.
type Schedule struct {
	Cron string `toml:"cron"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval int  `toml:"queue_poll_interval"`
	HeartbeatInterval int  `toml:"heartbeat_interval"`
	HeartbeatTimeout  int  `toml:"heartbeat_timeout"`
	StopPodWhenIdle   bool `toml:"stop_pod_when_idle"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Queued         bool   `toml:"queued"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for storyreel.
//
// Configuration sections by subsystem:
//   - Paths: work, state, and log directories
//   - API: render worker listener
//   - LLM, Script: story and clip prompt generation
//   - TTS: voiceover synthesis with character timing
//   - Storage: object store for every artifact
//   - Pod, Dispatch: GPU pod lifecycle and render trigger waits
//   - ImageGen, Render: image generation and video composition
//   - Schedule: cron expression for unattended generation
//   - Workflow: worker queue polling and heartbeats
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	LLM           LLM           `toml:"llm"`
	Script        Script        `toml:"script"`
	TTS           TTS           `toml:"tts"`
	Storage       Storage       `toml:"storage"`
	Pod           Pod           `toml:"pod"`
	Dispatch      Dispatch      `toml:"dispatch"`
	ImageGen      ImageGen      `toml:"imagegen"`
	Render        Render        `toml:"render"`
	Schedule      Schedule      `toml:"schedule"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/storyreel/config.toml")
}

// Load locates, parses, and validates a configuration file. A .env file in the
// working directory or beside the config file is loaded first so environment
// fallbacks see its values; variables already set in the process win.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := loadDotEnv(resolvedPath); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	seen := map[string]struct{}{}
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		if info, err := os.Stat(abs); err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load env file %s: %w", abs, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("storyreel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon and CLI write to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.StateDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the render job database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LockPath returns the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "storyreeld.lock")
}

// WorkerURL returns the render trigger endpoint for the configured pod.
func (c *Config) WorkerURL() string {
	pattern := strings.TrimSpace(c.Pod.WorkerURLPattern)
	if pattern == "" {
		pattern = defaultWorkerURLPattern
	}
	return strings.ReplaceAll(pattern, "{pod_id}", c.Pod.PodID)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
