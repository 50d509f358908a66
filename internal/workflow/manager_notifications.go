package workflow

import (
	"context"
	"errors"
	"time"

	"storyreel/internal/logging"
	"storyreel/internal/notifications"
	"storyreel/internal/queue"
)

func (m *Manager) notifyStageError(ctx context.Context, stageName string, job *queue.Job, stageErr error) {
	if m.notifier == nil || stageErr == nil {
		return
	}
	logger := logging.WithContext(ctx, m.runnerLogger())
	if err := m.notifier.Publish(ctx, notifications.EventRenderFailed, notifications.Payload{
		"videoID": job.VideoID,
		"stage":   stageName,
		"error":   job.ErrorMessage,
	}); err != nil {
		logger.Debug("stage error notification failed", logging.Error(err))
	}
}

func (m *Manager) onJobStarted(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activity.active {
		return
	}
	m.activity = queueActivity{active: true, start: time.Now()}
}

func (m *Manager) recordOutcome(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if failed {
		m.activity.failed++
	} else {
		m.activity.processed++
	}
}

// checkQueueDrained runs the idle hook once when no work remains after a
// burst of activity. An unreadable queue counts as drained: the worker cannot
// make progress without it.
func (m *Manager) checkQueueDrained(ctx context.Context) {
	stats, err := m.store.Stats(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		m.runnerLogger().Debug("daemon shutting down, could not check queue completion")
		return
	case err != nil:
		m.runnerLogger().Warn("queue stats unavailable; treating queue as drained",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_stats_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "the pod is released with jobs possibly left in flight"),
		)
	case countActiveJobs(stats) > 0:
		return
	}

	m.mu.Lock()
	if !m.activity.active {
		m.mu.Unlock()
		return
	}
	activity := m.activity
	m.activity = queueActivity{}
	m.mu.Unlock()

	summary := QueueSummary{Processed: activity.processed, Failed: activity.failed}
	if !activity.start.IsZero() {
		summary.Duration = time.Since(activity.start)
	}
	m.runnerLogger().Info("queue drained",
		logging.String(logging.FieldEventType, "queue_drained"),
		logging.Int("processed", summary.Processed),
		logging.Int("failed", summary.Failed),
		logging.Duration("duration", summary.Duration),
	)
	if m.idleHook != nil {
		m.idleHook(context.WithoutCancel(ctx), summary)
	}
}

func countActiveJobs(stats map[queue.Status]int) int {
	total := 0
	for status, count := range stats {
		if status == queue.StatusCompleted || status == queue.StatusFailed {
			continue
		}
		total += count
	}
	return total
}
