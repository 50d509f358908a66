package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeLLM()
	c.normalizeScript()
	c.normalizeTTS()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizePod()
	c.normalizeImageGen()
	c.normalizeRender()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = lookupEnv("STORYREEL_API_TOKEN")
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = lookupEnv("DEEPSEEK_API_KEY")
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
	if c.LLM.RetryAttempts <= 0 {
		c.LLM.RetryAttempts = defaultLLMRetryAttempts
	}
}

func (c *Config) normalizeScript() {
	c.Script.InspirationURL = strings.TrimSpace(c.Script.InspirationURL)
	if c.Script.InspirationURL == "" {
		c.Script.InspirationURL = defaultInspirationURL
	}
	if c.Script.PromptConcurrency <= 0 {
		c.Script.PromptConcurrency = defaultPromptWorkers
	}
}

func (c *Config) normalizeTTS() {
	c.TTS.APIKey = strings.TrimSpace(c.TTS.APIKey)
	if c.TTS.APIKey == "" {
		c.TTS.APIKey = lookupEnv("ELEVENLABS_API_KEY")
	}
	c.TTS.BaseURL = strings.TrimRight(strings.TrimSpace(c.TTS.BaseURL), "/")
	if c.TTS.BaseURL == "" {
		c.TTS.BaseURL = defaultTTSBaseURL
	}
	c.TTS.Model = strings.TrimSpace(c.TTS.Model)
	if c.TTS.Model == "" {
		c.TTS.Model = defaultTTSModel
	}
	voices := make([]string, 0, len(c.TTS.Voices))
	seen := make(map[string]struct{}, len(c.TTS.Voices))
	for _, voice := range c.TTS.Voices {
		voice = strings.TrimSpace(voice)
		if voice == "" {
			continue
		}
		if _, ok := seen[voice]; ok {
			continue
		}
		seen[voice] = struct{}{}
		voices = append(voices, voice)
	}
	if len(voices) == 0 {
		voices = append(voices, DefaultVoices...)
	}
	c.TTS.Voices = voices
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeout
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageS3
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = lookupEnv("S3_BUCKET")
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = lookupEnv("AWS_REGION")
	}
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	if strings.TrimSpace(c.Storage.LocalDir) == "" {
		c.Storage.LocalDir = defaultLocalStorageDir
	}
	var err error
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePod() {
	c.Pod.APIKey = strings.TrimSpace(c.Pod.APIKey)
	if c.Pod.APIKey == "" {
		c.Pod.APIKey = lookupEnv("RUNPOD_API_KEY")
	}
	c.Pod.PodID = strings.TrimSpace(c.Pod.PodID)
	if c.Pod.PodID == "" {
		c.Pod.PodID = lookupEnv("RUNPOD_POD_ID")
	}
	c.Pod.StopAPIKey = strings.TrimSpace(c.Pod.StopAPIKey)
	if c.Pod.StopAPIKey == "" {
		c.Pod.StopAPIKey = lookupEnv("STOPPING_RUNPOD_API_KEY")
	}
	c.Pod.StopPodID = strings.TrimSpace(c.Pod.StopPodID)
	if c.Pod.StopPodID == "" {
		c.Pod.StopPodID = lookupEnv("STOPPING_RUNPOD_POD_ID")
	}
	c.Pod.RESTBaseURL = strings.TrimRight(strings.TrimSpace(c.Pod.RESTBaseURL), "/")
	if c.Pod.RESTBaseURL == "" {
		c.Pod.RESTBaseURL = defaultPodRESTBaseURL
	}
	c.Pod.GraphQLURL = strings.TrimSpace(c.Pod.GraphQLURL)
	if c.Pod.GraphQLURL == "" {
		c.Pod.GraphQLURL = defaultPodGraphQLURL
	}
	c.Pod.WorkerURLPattern = strings.TrimSpace(c.Pod.WorkerURLPattern)
	if c.Pod.WorkerURLPattern == "" {
		c.Pod.WorkerURLPattern = defaultWorkerURLPattern
	}
}

func (c *Config) normalizeImageGen() {
	c.ImageGen.BaseURL = strings.TrimSpace(c.ImageGen.BaseURL)
	if c.ImageGen.BaseURL == "" {
		c.ImageGen.BaseURL = defaultImageGenBaseURL
	}
	c.ImageGen.Model = strings.TrimSpace(c.ImageGen.Model)
	if c.ImageGen.Model == "" {
		c.ImageGen.Model = defaultImageGenModel
	}
	c.ImageGen.APIKey = strings.TrimSpace(c.ImageGen.APIKey)
	if c.ImageGen.TimeoutSeconds <= 0 {
		c.ImageGen.TimeoutSeconds = defaultImageGenTimeout
	}
}

func (c *Config) normalizeRender() {
	c.Render.FFmpegBinary = strings.TrimSpace(c.Render.FFmpegBinary)
	if c.Render.FFmpegBinary == "" {
		c.Render.FFmpegBinary = "ffmpeg"
	}
	c.Render.FFprobeBinary = strings.TrimSpace(c.Render.FFprobeBinary)
	if c.Render.FFprobeBinary == "" {
		c.Render.FFprobeBinary = "ffprobe"
	}
	c.Render.FontPath = strings.TrimSpace(c.Render.FontPath)
	if c.Render.FontPath == "" {
		c.Render.FontPath = defaultFontPath
	}
	c.Render.Preset = strings.ToLower(strings.TrimSpace(c.Render.Preset))
	if c.Render.Preset == "" {
		c.Render.Preset = "medium"
	}
	c.Render.VideoBitrate = strings.TrimSpace(c.Render.VideoBitrate)
	if c.Render.VideoBitrate == "" {
		c.Render.VideoBitrate = "2000k"
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = lookupEnv("STORYREEL_NTFY_TOPIC")
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" || format == "text" {
		format = defaultLogFormat
	}
	c.Logging.Format = format
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func lookupEnv(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
