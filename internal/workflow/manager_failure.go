package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storyreel/internal/logging"
	"storyreel/internal/queue"
	"storyreel/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, stageName string, job *queue.Job, stageErr error) {
	// The failure must be recorded even when shutdown cancelled the stage.
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, m.runnerLogger())

	message := classifyStageFailure(stageName, stageErr)
	exceptionType := services.ExceptionType(stageErr)
	job.SetFailed(message, exceptionType)

	logger.Error("stage failed",
		logging.String("resolved_status", string(queue.StatusFailed)),
		logging.String("error_message", message),
		logging.String("exception_type", exceptionType),
		logging.Bool("retryable", services.Retryable(stageErr)),
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorHint, "inspect the job with storyreel jobs show, then retry it"),
	)

	if err := m.store.Update(ctx, job); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}
	if m.metrics != nil {
		m.metrics.JobTransition(string(queue.StatusFailed))
	}

	if m.failureHook != nil {
		if err := m.failureHook(ctx, job, stageErr); err != nil {
			logger.Warn("failure record incomplete",
				logging.Error(err),
				logging.String(logging.FieldEventType, "failure_record_failed"),
				logging.String(logging.FieldImpact, "error artifact or metadata status may be missing"),
			)
		}
	}

	m.setLastJob(job)
	m.recordOutcome(true)
	m.notifyStageError(ctx, stageName, job, stageErr)
	m.checkQueueDrained(ctx)
}

func classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return stageFailureMessage(stageName, "failed without error detail")
	}
	message := strings.TrimSpace(stageErr.Error())
	if errors.Is(stageErr, context.Canceled) {
		message = "cancelled: " + message
	}
	if message == "" {
		message = stageFailureMessage(stageName, "failed")
	}
	return message
}

func stageFailureMessage(stageName, defaultMsg string) string {
	if stageName != "" {
		return fmt.Sprintf("%s %s", stageName, defaultMsg)
	}
	return fmt.Sprintf("workflow %s", defaultMsg)
}
