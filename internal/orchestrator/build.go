package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"storyreel/internal/config"
	"storyreel/internal/dispatch"
	"storyreel/internal/script"
	"storyreel/internal/services/llm"
	"storyreel/internal/services/runpod"
	"storyreel/internal/services/storybank"
	"storyreel/internal/services/tts"
	"storyreel/internal/storage"
)

// DispatchSettings maps the dispatch and pod sections of cfg.
func DispatchSettings(cfg *config.Config) dispatch.Settings {
	d := cfg.Dispatch
	return dispatch.Settings{
		StartAttempts:  d.StartAttempts,
		StartInterval:  seconds(d.StartIntervalSeconds),
		ReadyChecks:    d.ReadyChecks,
		ReadyInterval:  seconds(d.ReadyIntervalSeconds),
		Warmup:         seconds(d.WarmupSeconds),
		RequestTimeout: seconds(d.RequestTimeoutSeconds),
		WorkerURL:      cfg.WorkerURL(),
	}
}

// NewScriptWriter builds the LLM-backed script generator, with the story bank
// as inspiration when enabled.
func NewScriptWriter(cfg *config.Config, logger *slog.Logger) *script.Generator {
	client := llm.NewClient(llm.Config{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		TimeoutSeconds:    cfg.LLM.TimeoutSeconds,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	}, llm.WithRetryMaxAttempts(cfg.LLM.RetryAttempts))

	var inspiration script.InspirationSource
	if cfg.Script.InspirationEnabled {
		inspiration = storybank.NewClient(cfg.Script.InspirationURL, nil, script.CleanText)
	}
	writer := script.NewGenerator(client, inspiration, logger, nil)
	writer.FixedDurationSeconds = cfg.Script.DurationSeconds
	return writer
}

// FromConfig wires the generation pipeline against the configured providers,
// storage backend and pod.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Orchestrator, storage.Backend, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	if err := cfg.RequireOrchestrator(); err != nil {
		return nil, nil, err
	}
	backend, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	voice := tts.NewClient(tts.Config{
		APIKey:         cfg.TTS.APIKey,
		BaseURL:        cfg.TTS.BaseURL,
		Model:          cfg.TTS.Model,
		Voices:         cfg.TTS.Voices,
		TimeoutSeconds: cfg.TTS.TimeoutSeconds,
	}, nil, nil)
	pod := runpod.NewClient(runpod.Config{
		APIKey:      cfg.Pod.APIKey,
		PodID:       cfg.Pod.PodID,
		RESTBaseURL: cfg.Pod.RESTBaseURL,
		GraphQLURL:  cfg.Pod.GraphQLURL,
	}, nil)

	settings := DispatchSettings(cfg)
	// The client timeout only bounds our wait; the worker keeps rendering.
	trigger := dispatch.New(pod, &http.Client{Timeout: settings.RequestTimeout}, settings, logger)

	opts = append([]Option{WithConcurrency(cfg.Script.PromptConcurrency)}, opts...)
	return New(NewScriptWriter(cfg, logger), voice, backend, trigger, logger, opts...), backend, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
