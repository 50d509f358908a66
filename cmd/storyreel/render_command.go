package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"storyreel/internal/daemonrun"
	"storyreel/internal/metrics"
	"storyreel/internal/notifications"
	"storyreel/internal/queue"
	"storyreel/internal/render"
	"storyreel/internal/stageexec"
	"storyreel/internal/storage"
	"storyreel/internal/transcript"
	"storyreel/internal/workflow"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var bucket, transcriptKey, audioKey string

	cmd := &cobra.Command{
		Use:   "render <video-id>",
		Short: "Render and publish one video in the foreground",
		Long: "Render runs the worker's render and publish stages for one video without\n" +
			"the daemon. The job is recorded in the queue so status and retries work\n" +
			"the same way. Keys default to the standard layout for the video id.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireWorker(); err != nil {
				return err
			}
			videoID := strings.TrimSpace(args[0])
			req := render.Job{
				Bucket:        strings.TrimSpace(bucket),
				TranscriptKey: strings.TrimSpace(transcriptKey),
				AudioKey:      strings.TrimSpace(audioKey),
				VideoID:       videoID,
			}
			if req.Bucket == "" {
				req.Bucket = cfg.Storage.Bucket
			}
			if req.TranscriptKey == "" {
				req.TranscriptKey = transcript.TranscriptKey(videoID)
			}
			if req.AudioKey == "" {
				req.AudioKey = transcript.AudioKey(videoID)
			}
			if err := req.Validate(); err != nil {
				return err
			}

			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}
			backend, err := storage.Open(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				job, err := prepareRenderJob(cmd.Context(), store, req)
				if err != nil {
					return err
				}
				notifier := notifications.NewService(cfg)
				stages := daemonrun.Stages(cfg, daemonrun.NewRenderer(cfg, backend, metrics.New(), logger), backend, notifier, logger)
				if err := runRenderStages(cmd.Context(), store, backend, notifier, stages, job, logger); err != nil {
					return err
				}
				printRenderedJob(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Storage bucket (defaults to storage.bucket)")
	cmd.Flags().StringVar(&transcriptKey, "transcript-key", "", "Transcript object key")
	cmd.Flags().StringVar(&audioKey, "audio-key", "", "Narration audio object key")
	return cmd
}

// prepareRenderJob reuses the latest job for the video, retrying it when it
// failed, or enqueues a new one.
func prepareRenderJob(ctx context.Context, store *queue.Store, req render.Job) (*queue.Job, error) {
	job, err := store.FindByVideoID(ctx, req.VideoID)
	if err != nil {
		return nil, err
	}
	if job != nil {
		switch job.Status {
		case queue.StatusFailed:
			if _, err := store.RetryFailed(ctx, job.ID); err != nil {
				return nil, err
			}
			return store.GetByID(ctx, job.ID)
		case queue.StatusCompleted:
		default:
			return job, nil
		}
	}
	job, _, err = store.Enqueue(ctx, queue.NewJob{
		VideoID:       req.VideoID,
		Bucket:        req.Bucket,
		TranscriptKey: req.TranscriptKey,
		AudioKey:      req.AudioKey,
	})
	return job, err
}

func runRenderStages(ctx context.Context, store *queue.Store, backend storage.Resolver, notifier notifications.Service, stages workflow.StageSet, job *queue.Job, logger *slog.Logger) error {
	if queue.IsProcessingStatus(job.Status) {
		return fmt.Errorf("job %d for %s is %s; is the worker running?", job.ID, job.VideoID, job.Status)
	}
	onFailure := daemonrun.FailureRecorder(backend)
	if job.Status == queue.StatusPending {
		if err := stageexec.Run(ctx, stageexec.Options{
			Logger:     logger,
			Store:      store,
			Notifier:   notifier,
			Handler:    stages.Renderer,
			StageName:  "render",
			Processing: queue.StatusRendering,
			Done:       queue.StatusRendered,
			Job:        job,
			OnFailure:  onFailure,
		}); err != nil {
			return err
		}
	}
	if job.Status != queue.StatusRendered {
		return fmt.Errorf("job %d for %s is %s, nothing to publish", job.ID, job.VideoID, job.Status)
	}
	return stageexec.Run(ctx, stageexec.Options{
		Logger:     logger,
		Store:      store,
		Notifier:   notifier,
		Handler:    stages.Publisher,
		StageName:  "publish",
		Processing: queue.StatusPublishing,
		Done:       queue.StatusCompleted,
		Job:        job,
		OnFailure:  onFailure,
	})
}

func printRenderedJob(out io.Writer, job *queue.Job) {
	fmt.Fprintf(out, "Video %s %s\n", job.VideoID, strings.ToLower(statusLabel(job.Status)))
	if job.VideoKey != "" {
		fmt.Fprintf(out, "  Video key:    %s\n", job.VideoKey)
	}
	fmt.Fprintf(out, "  Clips:        %d (%d placeholder)\n", job.ClipCount, job.Placeholders)
	if job.DurationSeconds > 0 {
		fmt.Fprintf(out, "  Duration:     %.1fs\n", job.DurationSeconds)
	}
}
