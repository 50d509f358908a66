package daemonrun

import (
	"context"
	"log/slog"

	"storyreel/internal/config"
	"storyreel/internal/deps"
	"storyreel/internal/logging"
	"storyreel/internal/media/ffprobe"
	"storyreel/internal/metrics"
	"storyreel/internal/notifications"
	"storyreel/internal/publishing"
	"storyreel/internal/queue"
	"storyreel/internal/render"
	"storyreel/internal/rendering"
	"storyreel/internal/services"
	"storyreel/internal/services/imagegen"
	"storyreel/internal/services/runpod"
	"storyreel/internal/storage"
	"storyreel/internal/workflow"
)

// Pod stop outcomes recorded in metrics.
const (
	podStopped = "stopped"
	podFailed  = "failed"
	podSkipped = "skipped"
)

// PodStopper releases the GPU pod the worker runs on.
type PodStopper interface {
	Stop(ctx context.Context) error
}

// NewRenderer builds the image generation and ffmpeg composition pipeline.
func NewRenderer(cfg *config.Config, stores storage.Resolver, reg *metrics.Registry, logger *slog.Logger) *render.Renderer {
	images := imagegen.NewClient(imagegen.Config{
		BaseURL:        cfg.ImageGen.BaseURL,
		APIKey:         cfg.ImageGen.APIKey,
		Model:          cfg.ImageGen.Model,
		Width:          cfg.ImageGen.Width,
		Height:         cfg.ImageGen.Height,
		Steps:          cfg.ImageGen.Steps,
		GuidanceScale:  cfg.ImageGen.GuidanceScale,
		TimeoutSeconds: cfg.ImageGen.TimeoutSeconds,
	}, nil)
	opts := render.OptionsFromConfig(cfg)
	composer := render.NewFFmpeg(cfg.Render.FFmpegBinary, opts.Settings)
	probeBinary := cfg.Render.FFprobeBinary
	probe := func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, probeBinary, path)
	}
	return render.New(stores, images, composer, opts, logger, render.WithProbe(probe), render.WithMetrics(reg))
}

// Stages builds the render and publish handlers around renderer.
func Stages(cfg *config.Config, renderer rendering.Renderer, stores storage.Resolver, notifier notifications.Service, logger *slog.Logger) workflow.StageSet {
	return workflow.StageSet{
		Renderer:  rendering.NewHandler(renderer, deps.WorkerRequirements(cfg), logger),
		Publisher: publishing.NewPublisher(stores, notifier, logger),
	}
}

// FailureRecorder writes the error artifact and marks the metadata failed in
// the job's bucket.
func FailureRecorder(stores storage.Resolver) workflow.FailureHook {
	return func(ctx context.Context, job *queue.Job, stageErr error) error {
		if job == nil || stores == nil {
			return nil
		}
		return render.RecordFailure(ctx, stores.ForBucket(job.Bucket), job.VideoID, stageErr)
	}
}

// NewPodStopper returns a client using the worker's stop credentials, or nil
// when they are not configured.
func NewPodStopper(cfg *config.Config) PodStopper {
	if !cfg.CanStopPod() {
		return nil
	}
	return runpod.NewClient(runpod.Config{
		APIKey:      cfg.Pod.StopAPIKey,
		PodID:       cfg.Pod.StopPodID,
		RESTBaseURL: cfg.Pod.RESTBaseURL,
		GraphQLURL:  cfg.Pod.GraphQLURL,
	}, nil)
}

// PodReleaser stops the pod each time the queue drains, whether the jobs
// succeeded or failed. A nil stopper logs a warning and skips.
func PodReleaser(stopper PodStopper, reg *metrics.Registry, logger *slog.Logger) workflow.IdleHook {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "pod-release"))
	return func(ctx context.Context, summary workflow.QueueSummary) {
		ctx = services.WithStage(ctx, "pod_release")
		if stopper == nil {
			reg.PodStop(podSkipped)
			logging.WarnWithContext(logging.WithContext(ctx, logger), "pod stop skipped", "pod_stop_skipped",
				logging.String(logging.FieldErrorHint, "set pod.stop_api_key and pod.stop_pod_id"),
				logging.String(logging.FieldImpact, "the GPU pod keeps running until stopped manually"),
			)
			return
		}
		if err := stopper.Stop(ctx); err != nil {
			reg.PodStop(podFailed)
			logging.ErrorWithContext(logging.WithContext(ctx, logger), "pod stop failed", "pod_stop_failed",
				logging.String(logging.FieldImpact, "the GPU pod keeps running until stopped manually"),
				logging.Error(err),
			)
			return
		}
		reg.PodStop(podStopped)
		logger.Info("pod stopped",
			logging.String(logging.FieldEventType, "pod_stopped"),
			logging.Int("processed", summary.Processed),
			logging.Int("failed", summary.Failed),
			logging.Duration("busy", summary.Duration),
		)
	}
}

// StartupReleaser returns a func that stops the pod when the worker exits
// before accepting jobs. It is a no-op unless workflow.stop_pod_when_idle is
// set.
func StartupReleaser(cfg *config.Config, stopper PodStopper, reg *metrics.Registry, logger *slog.Logger) func(context.Context) {
	if cfg == nil || !cfg.Workflow.StopPodWhenIdle {
		return func(context.Context) {}
	}
	release := PodReleaser(stopper, reg, logger)
	return func(ctx context.Context) {
		release(context.WithoutCancel(ctx), workflow.QueueSummary{})
	}
}
