package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, video_id, bucket, transcript_key, audio_key, status, video_key, clip_count, placeholders, duration_seconds, attempts, error_message, exception_type, progress_stage, progress_message, created_at, updated_at, last_heartbeat, completed_at"

var expectedColumns = []string{
	"id", "video_id", "bucket", "transcript_key", "audio_key", "status", "video_key",
	"clip_count", "placeholders", "duration_seconds", "attempts", "error_message",
	"exception_type", "progress_stage", "progress_message", "created_at", "updated_at",
	"last_heartbeat", "completed_at",
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job             Job
		statusStr       string
		bucket          sql.NullString
		videoKey        sql.NullString
		errorMessage    sql.NullString
		exceptionType   sql.NullString
		progressStage   sql.NullString
		progressMessage sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		heartbeatRaw    sql.NullString
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&job.ID,
		&job.VideoID,
		&bucket,
		&job.TranscriptKey,
		&job.AudioKey,
		&statusStr,
		&videoKey,
		&job.ClipCount,
		&job.Placeholders,
		&job.DurationSeconds,
		&job.Attempts,
		&errorMessage,
		&exceptionType,
		&progressStage,
		&progressMessage,
		&createdRaw,
		&updatedRaw,
		&heartbeatRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job.Status = Status(statusStr)
	job.Bucket = bucket.String
	job.VideoKey = videoKey.String
	job.ErrorMessage = errorMessage.String
	job.ExceptionType = exceptionType.String
	job.ProgressStage = progressStage.String
	job.ProgressMessage = progressMessage.String

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	job.LastHeartbeat = parseOptionalTime(heartbeatRaw)
	job.CompletedAt = parseOptionalTime(completedRaw)
	return &job, nil
}

func parseOptionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return timestamp(*value)
}

// timeLayout keeps a fixed fraction width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
