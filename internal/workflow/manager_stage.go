package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyreel/internal/logging"
	"storyreel/internal/queue"
	"storyreel/internal/stage"
)

func (m *Manager) processJob(ctx context.Context, runnerLogger *slog.Logger, job *queue.Job) error {
	stg, ok := m.stageForStatus(job.Status)
	if !ok {
		runnerLogger.Warn("no stage configured for status", logging.String("status", string(job.Status)))
		m.waitForJobOrShutdown(ctx)
		return nil
	}

	requestID := uuid.NewString()
	stageCtx := withStageContext(ctx, stg.name, job, requestID)
	stageLogger, closeLog := m.stageLogger(stageCtx, runnerLogger, job)
	defer closeLog()
	if aware, ok := stg.handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	if err := m.transitionToProcessing(stageCtx, stg.processingStatus, job); err != nil {
		stageLogger.Error("failed to transition job to processing", logging.Error(err))
		m.setLastError(err)
		return err
	}

	return m.executeStage(stageCtx, stageLogger, stg, job)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, job *queue.Job) error {
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String("transcript_key", strings.TrimSpace(job.TranscriptKey)),
		logging.String("audio_key", strings.TrimSpace(job.AudioKey)),
	)

	handler := stg.handler
	if handler == nil {
		err := fmt.Errorf("stage %s missing handler", stg.name)
		m.handleStageFailure(ctx, stg.name, job, err)
		m.setLastError(err)
		return err
	}

	if err := handler.Prepare(ctx, job); err != nil {
		m.observeStage(stg.name, false, stageStart)
		m.handleStageFailure(ctx, stg.name, job, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.Update(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.observeStage(stg.name, false, stageStart)
		m.handleStageFailure(ctx, stg.name, job, wrapped)
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, handler, job)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) && ctx.Err() != nil {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.observeStage(stg.name, false, stageStart)
		m.handleStageFailure(ctx, stg.name, job, execErr)
		m.setLastError(execErr)
		return execErr
	}
	m.observeStage(stg.name, true, stageStart)

	if job.Status == stg.processingStatus || job.Status == "" {
		job.Status = stg.doneStatus
	}
	job.LastHeartbeat = nil
	if job.Status == queue.StatusCompleted && job.CompletedAt == nil {
		job.SetCompleted(time.Now())
	}
	if err := m.store.Update(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.handleStageFailure(ctx, stg.name, job, wrapped)
		m.setLastError(wrapped)
		return wrapped
	}
	if m.metrics != nil {
		m.metrics.JobTransition(string(job.Status))
	}
	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(job.Status)),
		logging.String("progress_stage", strings.TrimSpace(job.ProgressStage)),
		logging.String("progress_message", strings.TrimSpace(job.ProgressMessage)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastJob(job)
	if job.Status == queue.StatusCompleted {
		m.recordOutcome(false)
	}
	m.checkQueueDrained(ctx)
	return nil
}

// executeWithHeartbeat runs the handler while the heartbeat loop keeps the
// job claimed. A panicking handler is reported as a stage error.
func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, job *queue.Job) (execErr error) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()
	defer func() {
		if r := recover(); r != nil {
			m.runnerLogger().Error("stage panicked",
				logging.String(logging.FieldEventType, "stage_panic"),
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
			)
			execErr = fmt.Errorf("stage panicked: %v", r)
		}
	}()

	return handler.Execute(ctx, job)
}

func (m *Manager) transitionToProcessing(ctx context.Context, processing queue.Status, job *queue.Job) error {
	if processing == "" {
		return errors.New("processing status must not be empty")
	}

	setJobProcessingState(job, processing)
	if err := m.store.Update(ctx, job); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	if m.metrics != nil {
		m.metrics.JobTransition(string(processing))
	}
	m.setLastJob(job)
	m.onJobStarted(ctx)
	return nil
}

func (m *Manager) observeStage(name string, success bool, start time.Time) {
	if m.metrics != nil {
		m.metrics.ObserveStage(name, success, time.Since(start))
	}
}

func setJobProcessingState(job *queue.Job, processing queue.Status) {
	now := time.Now().UTC()
	job.Status = processing
	label := deriveStageLabel(processing)
	job.SetProgress(label, label+" started")
	job.ErrorMessage = ""
	job.ExceptionType = ""
	job.LastHeartbeat = &now
}
