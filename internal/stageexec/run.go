// Package stageexec runs a single workflow stage in the foreground. The CLI
// uses it to render one video without a running daemon.
package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storyreel/internal/logging"
	"storyreel/internal/notifications"
	"storyreel/internal/queue"
	"storyreel/internal/services"
	"storyreel/internal/stage"
)

// Options controls stage execution and queue persistence behavior.
type Options struct {
	Logger     *slog.Logger
	Store      *queue.Store
	Notifier   notifications.Service
	Handler    stage.Handler
	StageName  string
	Processing queue.Status
	Done       queue.Status
	Job        *queue.Job
	// OnFailure records the failure outside the queue. Its error is logged.
	OnFailure func(ctx context.Context, job *queue.Job, err error) error
}

// Run executes a stage and applies the same queue transitions the daemon uses.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler unavailable: %s", opts.StageName)
	}
	if opts.Store == nil {
		return fmt.Errorf("queue store is required")
	}
	if opts.Job == nil {
		return fmt.Errorf("queue job is required")
	}

	stageCtx := services.WithStage(services.WithJobID(ctx, opts.Job.ID), opts.StageName)
	stageCtx = services.WithVideoID(stageCtx, opts.Job.VideoID)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(opts.Processing)),
		logging.String("transcript_key", strings.TrimSpace(opts.Job.TranscriptKey)),
	)

	now := time.Now().UTC()
	opts.Job.Status = opts.Processing
	opts.Job.ErrorMessage = ""
	opts.Job.ExceptionType = ""
	opts.Job.LastHeartbeat = &now
	if err := opts.Store.Update(stageCtx, opts.Job); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}

	if err := opts.Handler.Prepare(stageCtx, opts.Job); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, err)
	}
	if err := opts.Store.Update(stageCtx, opts.Job); err != nil {
		return fmt.Errorf("persist stage preparation: %w", err)
	}

	if err := opts.Handler.Execute(stageCtx, opts.Job); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, err)
	}

	if opts.Job.Status == opts.Processing || opts.Job.Status == "" {
		opts.Job.Status = opts.Done
	}
	opts.Job.LastHeartbeat = nil
	if err := opts.Store.Update(stageCtx, opts.Job); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(opts.Job.Status)),
		logging.String("progress_message", strings.TrimSpace(opts.Job.ProgressMessage)),
	)
	return nil
}

func handleFailure(ctx context.Context, logger *slog.Logger, opts Options, stageErr error) error {
	ctx = context.WithoutCancel(ctx)
	message := strings.TrimSpace(stageErr.Error())
	opts.Job.SetFailed(message, services.ExceptionType(stageErr))

	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("resolved_status", string(queue.StatusFailed)),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)
	if err := opts.Store.Update(ctx, opts.Job); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}
	if opts.OnFailure != nil {
		if err := opts.OnFailure(ctx, opts.Job, stageErr); err != nil {
			logger.Warn("failure record incomplete", logging.Error(err))
		}
	}

	if opts.Notifier != nil {
		if err := opts.Notifier.Publish(ctx, notifications.EventRenderFailed, notifications.Payload{
			"videoID": opts.Job.VideoID,
			"stage":   opts.StageName,
			"error":   message,
		}); err != nil {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}

	return stageErr
}
