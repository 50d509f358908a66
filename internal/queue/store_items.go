package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Enqueue records an accepted render request. When the same video already has
// a job that has not finished, that job is returned instead and created is
// false.
func (s *Store) Enqueue(ctx context.Context, req NewJob) (job *Job, created bool, err error) {
	req.VideoID = strings.TrimSpace(req.VideoID)
	if req.VideoID == "" || strings.TrimSpace(req.TranscriptKey) == "" || strings.TrimSpace(req.AudioKey) == "" {
		return nil, false, errors.New("enqueue: video id, transcript key and audio key are required")
	}

	existing, err := s.FindActiveByVideoID(ctx, req.VideoID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO render_jobs (
            video_id, bucket, transcript_key, audio_key, status,
            progress_stage, progress_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.VideoID,
		nullableString(req.Bucket),
		req.TranscriptKey,
		req.AudioKey,
		StatusPending,
		"Queued",
		"Waiting for worker",
		now,
		now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}

	job, err = s.GetByID(ctx, id)
	return job, err == nil, err
}

// GetByID fetches a job by identifier. A missing job returns nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM render_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindByVideoID returns the newest job for a video.
func (s *Store) FindByVideoID(ctx context.Context, videoID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM render_jobs WHERE video_id = ? ORDER BY id DESC LIMIT 1`, videoID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by video id: %w", err)
	}
	return job, nil
}

// FindActiveByVideoID returns the unfinished job for a video, if any.
func (s *Store) FindActiveByVideoID(ctx context.Context, videoID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM render_jobs WHERE video_id = ? AND status NOT IN (?, ?) ORDER BY id DESC LIMIT 1`,
		videoID, StatusCompleted, StatusFailed)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE render_jobs
         SET status = ?, video_key = ?, clip_count = ?, placeholders = ?, duration_seconds = ?,
             attempts = ?, error_message = ?, exception_type = ?, progress_stage = ?,
             progress_message = ?, updated_at = ?, last_heartbeat = ?, completed_at = ?
         WHERE id = ?`,
		job.Status,
		nullableString(job.VideoKey),
		job.ClipCount,
		job.Placeholders,
		job.DurationSeconds,
		job.Attempts,
		nullableString(job.ErrorMessage),
		nullableString(job.ExceptionType),
		nullableString(job.ProgressStage),
		nullableString(job.ProgressMessage),
		timestamp(job.UpdatedAt),
		nullableTime(job.LastHeartbeat),
		nullableTime(job.CompletedAt),
		job.ID,
	); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM render_jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		args = statusArgs(statuses)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextForStatuses returns the oldest job matching any of the provided statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + jobColumns + ` FROM render_jobs WHERE status IN (` + makePlaceholders(len(statuses)) + `) ORDER BY created_at, id LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, statusArgs(statuses)...)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM render_jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM render_jobs WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM render_jobs WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM render_jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}
