package config

const (
	StorageS3    = "s3"
	StorageLocal = "local"
)

const (
	defaultWorkDir          = "~/.local/share/storyreel/work"
	defaultStateDir         = "~/.local/share/storyreel/state"
	defaultLogDir           = "~/.local/share/storyreel/logs"
	defaultLocalStorageDir  = "~/.local/share/storyreel/objects"
	defaultAPIBind          = "0.0.0.0:8000"
	defaultLLMBaseURL       = "https://api.deepseek.com/v1"
	defaultLLMModel         = "deepseek-chat"
	defaultLLMTimeout       = 120
	defaultLLMRetryAttempts = 5
	defaultInspirationURL   = "https://shortstories-api.onrender.com/"
	defaultPromptWorkers    = 4
	defaultTTSBaseURL       = "https://api.elevenlabs.io/v1"
	defaultTTSModel         = "eleven_turbo_v2_5"
	defaultTTSTimeout       = 120
	defaultPodRESTBaseURL   = "https://rest.runpod.io/v1"
	defaultPodGraphQLURL    = "https://api.runpod.io/graphql"
	defaultWorkerURLPattern = "https://{pod_id}-8000.proxy.runpod.net/process"
	defaultImageGenBaseURL  = "http://127.0.0.1:8080/v1"
	defaultImageGenModel    = "flux.1-dev"
	defaultImageGenTimeout  = 300
	defaultFontPath         = "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"
	defaultScheduleCron     = "@hourly"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// DefaultVoices is the fixed pool voiceovers are drawn from.
var DefaultVoices = []string{
	"ZF6FPAbjXT4488VcRRnw", "8JVbfL6oEdmuxKn5DK2C", "iCrDUkL56s3C8sCRl7wb", "1hlpeD1ydbI2ow0Tt3EW",
	"EkK5I93UQWFDigLMpZcX", "EiNlNiXeDU1pqqOPrYMO", "AeRdCCKzvd23BpJoofzx", "xTZlmU8dKXdyk4XGYGFg",
	"0lp4RIz96WD1RUtvEu3Q", "oQV06a7Gn8pbCJh5DXcO", "j9jfwdrw7BRfcR43Qohk", "Mu5jxyqZOLIGltFpfalg",
	"aEO01A4wXwd1O8GPgGlF", "FVQMzxJGPUBtfz1Azdoy", "gOkFV1JMCt0G0n9xmBwV", "alMSnmMfBQWEfTP8MRcX",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		API: API{Bind: defaultAPIBind},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeout,
			RetryAttempts:  defaultLLMRetryAttempts,
		},
		Script: Script{
			InspirationEnabled: true,
			InspirationURL:     defaultInspirationURL,
			PromptConcurrency:  defaultPromptWorkers,
		},
		TTS: TTS{
			BaseURL:        defaultTTSBaseURL,
			Model:          defaultTTSModel,
			Voices:         append([]string(nil), DefaultVoices...),
			TimeoutSeconds: defaultTTSTimeout,
		},
		Storage: Storage{
			Backend:  StorageS3,
			LocalDir: defaultLocalStorageDir,
		},
		Pod: Pod{
			RESTBaseURL:      defaultPodRESTBaseURL,
			GraphQLURL:       defaultPodGraphQLURL,
			WorkerURLPattern: defaultWorkerURLPattern,
		},
		Dispatch: Dispatch{
			StartAttempts:         60,
			StartIntervalSeconds:  60,
			ReadyChecks:           10,
			ReadyIntervalSeconds:  10,
			WarmupSeconds:         10,
			RequestTimeoutSeconds: 600,
		},
		ImageGen: ImageGen{
			BaseURL:        defaultImageGenBaseURL,
			Model:          defaultImageGenModel,
			Width:          1080,
			Height:         1080,
			Steps:          20,
			GuidanceScale:  3.5,
			TimeoutSeconds: defaultImageGenTimeout,
		},
		Render: Render{
			FFmpegBinary:       "ffmpeg",
			FFprobeBinary:      "ffprobe",
			FontPath:           defaultFontPath,
			FontSize:           60,
			PlaceholderFont:    24,
			Width:              1080,
			Height:             1080,
			FPS:                30,
			Preset:             "medium",
			VideoBitrate:       "2000k",
			ZoomFactor:         1.05,
			TailPadSeconds:     2,
			CaptionFadeSeconds: 0.1,
		},
		Schedule: Schedule{Cron: defaultScheduleCron},
		Workflow: Workflow{
			QueuePollInterval: 5,
			HeartbeatInterval: 15,
			HeartbeatTimeout:  120,
			StopPodWhenIdle:   true,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Queued:         true,
			Completed:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
