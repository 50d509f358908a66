package rendering

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"storyreel/internal/deps"
	"storyreel/internal/logging"
	"storyreel/internal/queue"
	"storyreel/internal/render"
	"storyreel/internal/stage"
)

// Renderer produces the video for one job.
type Renderer interface {
	Render(ctx context.Context, job render.Job) (render.Output, error)
}

// Handler runs render.Renderer as a workflow stage.
type Handler struct {
	renderer     Renderer
	requirements []deps.Requirement
	logger       *slog.Logger
}

// NewHandler constructs the render stage. requirements are checked by
// HealthCheck.
func NewHandler(renderer Renderer, requirements []deps.Requirement, logger *slog.Logger) *Handler {
	h := &Handler{renderer: renderer, requirements: requirements}
	h.SetLogger(logger)
	return h
}

// SetLogger swaps the handler logger for the per-job logger.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	h.logger = logger.With(logging.String(logging.FieldComponent, "rendering"))
}

func (h *Handler) Prepare(ctx context.Context, job *queue.Job) error {
	if _, err := stage.RenderJob(job); err != nil {
		return err
	}
	job.Attempts++
	job.ErrorMessage = ""
	job.ExceptionType = ""
	job.SetProgress("Rendering", "Generating images and composing video")
	logging.WithContext(ctx, h.logger).Info(
		"render preparation complete",
		logging.String("transcript_key", job.TranscriptKey),
		logging.String("audio_key", job.AudioKey),
		logging.Int("attempt", job.Attempts),
	)
	return nil
}

func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, h.logger)
	rj, err := stage.RenderJob(job)
	if err != nil {
		return err
	}
	out, err := h.renderer.Render(ctx, rj)
	if err != nil {
		return err
	}

	job.VideoKey = out.VideoKey
	job.ClipCount = out.ClipCount
	job.Placeholders = out.Placeholders
	job.DurationSeconds = out.Duration
	job.Status = queue.StatusRendered
	message := fmt.Sprintf("Rendered %d clips", out.ClipCount)
	if out.Placeholders > 0 {
		message = fmt.Sprintf("%s (%d placeholders)", message, out.Placeholders)
	}
	job.SetProgress("Rendered", message)
	logger.Info(
		"render stage complete",
		logging.String(logging.FieldEventType, "render_complete"),
		logging.String("video_key", out.VideoKey),
		logging.Int("clip_count", out.ClipCount),
		logging.Int("placeholders", out.Placeholders),
		logging.Float64("duration_seconds", out.Duration),
	)
	return nil
}

// HealthCheck reports whether the media binaries the renderer needs resolve.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	if h.renderer == nil {
		return stage.Unhealthy("rendering", "renderer not configured")
	}
	if missing := deps.Missing(deps.CheckBinaries(h.requirements)); len(missing) > 0 {
		return stage.Unhealthy("rendering", "missing "+strings.Join(missing, ", "))
	}
	return stage.Healthy("rendering")
}
