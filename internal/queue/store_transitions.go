package queue

import (
	"context"
	"fmt"
	"time"
)

// rollbackQuery builds an UPDATE that returns in-flight jobs to the start of
// their stage. extraWhere narrows the affected rows.
func rollbackQuery(progress, extraWhere string) (string, []any) {
	query := `UPDATE render_jobs SET status = CASE status`
	var caseArgs, inArgs []any
	for _, t := range stageRollbackTransitions {
		query += ` WHEN ? THEN ?`
		caseArgs = append(caseArgs, t.from, t.to)
		inArgs = append(inArgs, t.from)
	}
	query += ` ELSE status END,
            progress_stage = ?, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (` + makePlaceholders(len(inArgs)) + `)` + extraWhere
	args := append(caseArgs, progress, timestamp(time.Now()))
	args = append(args, inArgs...)
	return query, args
}

// ResetStuckProcessing resets in-flight jobs back to the start of their
// current stage. The daemon calls it on startup.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	query, args := rollbackQuery("Reset from stuck processing", "")
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := timestamp(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE render_jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns in-flight jobs whose heartbeat is older than
// cutoff to the start of their current stage.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args := rollbackQuery("Reclaimed from stale processing", ` AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`)
	args = append(args, timestamp(cutoff))
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to pending. With no ids every failed job
// is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE render_jobs
        SET status = ?, progress_stage = 'Retry requested', progress_message = NULL,
            error_message = NULL, exception_type = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{StatusPending, timestamp(time.Now()), StatusFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// FailInFlight marks every in-flight job as failed with reason. The daemon
// uses it when it cannot resume work, such as after a forced shutdown.
func (s *Store) FailInFlight(ctx context.Context, reason string) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE render_jobs
        SET status = ?, error_message = ?, progress_stage = 'Failed', progress_message = ?,
            last_heartbeat = NULL, updated_at = ?
        WHERE status IN (?, ?)`,
		StatusFailed, reason, reason, timestamp(time.Now()), StatusRendering, StatusPublishing)
	if err != nil {
		return 0, fmt.Errorf("fail in-flight jobs: %w", err)
	}
	return res.RowsAffected()
}
