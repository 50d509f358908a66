package workflow

import (
	"context"
	"log/slog"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyreel/internal/logging"
	"storyreel/internal/queue"
	"storyreel/internal/services"
)

var titleCase = cases.Title(language.English)

func (m *Manager) runnerLogger() *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	return logging.NewComponentLogger(m.logger, "workflow-runner")
}

// stageLogger writes to the daemon log and, when a log directory is
// configured, to the job's own log file. The returned func closes the file.
func (m *Manager) stageLogger(ctx context.Context, base *slog.Logger, job *queue.Job) (*slog.Logger, func()) {
	if base == nil {
		base = logging.NewNop()
	}
	closeFn := func() {}
	if job != nil && m.jobLogs != nil {
		handler, closer, err := m.jobLogs.Open(job)
		if err != nil {
			base.Warn("job log unavailable", logging.Error(err))
		} else {
			base = slog.New(logging.TeeHandler(base.Handler(), handler))
			closeFn = func() { _ = closer.Close() }
		}
	}
	return logging.WithContext(ctx, base), closeFn
}

func withStageContext(ctx context.Context, stageName string, job *queue.Job, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if job != nil {
		ctx = services.WithJobID(ctx, job.ID)
		ctx = services.WithVideoID(ctx, job.VideoID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

// deriveStageLabel turns a status into a progress label ("rendering" -> "Rendering").
func deriveStageLabel(status queue.Status) string {
	return titleCase.String(string(status))
}
