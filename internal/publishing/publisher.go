package publishing

import (
	"context"
	"log/slog"
	"time"

	"storyreel/internal/logging"
	"storyreel/internal/notifications"
	"storyreel/internal/queue"
	"storyreel/internal/render"
	"storyreel/internal/services"
	"storyreel/internal/stage"
	"storyreel/internal/storage"
)

// Publisher marks rendered videos as completed.
type Publisher struct {
	stores   storage.Resolver
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
}

// NewPublisher constructs the publish stage handler.
func NewPublisher(stores storage.Resolver, notifier notifications.Service, logger *slog.Logger) *Publisher {
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	p := &Publisher{stores: stores, notifier: notifier, now: time.Now}
	p.SetLogger(logger)
	return p
}

// SetLogger swaps the handler logger for the per-job logger.
func (p *Publisher) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	p.logger = logger.With(logging.String(logging.FieldComponent, "publishing"))
}

func (p *Publisher) Prepare(ctx context.Context, job *queue.Job) error {
	if job.VideoKey == "" {
		return services.Wrap(
			services.ErrValidation,
			"publishing",
			"validate inputs",
			"No rendered video recorded for job; retry it to render again",
			nil,
		)
	}
	job.SetProgress("Publishing", "Writing completion metadata")
	logging.WithContext(ctx, p.logger).Info("publish preparation complete", logging.String("video_key", job.VideoKey))
	return nil
}

func (p *Publisher) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, p.logger)
	store := p.stores.ForBucket(job.Bucket)
	now := p.now()
	meta, err := render.Complete(ctx, store, stage.Output(job), now)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publishing", "write metadata", "Failed to write completion metadata", err)
	}
	job.SetCompleted(now)
	job.SetProgress("Completed", "Available at "+job.VideoKey)
	logger.Info(
		"video published",
		logging.String(logging.FieldEventType, "video_published"),
		logging.String("video_key", job.VideoKey),
		logging.String("title", meta.Title),
	)

	if err := p.notifier.Publish(ctx, notifications.EventRenderCompleted, notifications.Payload{
		"videoID":   job.VideoID,
		"title":     meta.Title,
		"clipCount": job.ClipCount,
		"videoKey":  job.VideoKey,
	}); err != nil {
		logger.Warn("render completion notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldImpact, "operators will not be alerted about this video"),
		)
	}
	return nil
}

// HealthCheck pings the default bucket when the resolver supports it.
func (p *Publisher) HealthCheck(ctx context.Context) stage.Health {
	if p.stores == nil {
		return stage.Unhealthy("publishing", "storage not configured")
	}
	if pinger, ok := p.stores.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(ctx); err != nil {
			return stage.Unhealthy("publishing", err.Error())
		}
	}
	return stage.Healthy("publishing")
}
