package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a render job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRendering  Status = "rendering"
	StatusRendered   Status = "rendered"
	StatusPublishing Status = "publishing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is the error message set when jobs are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusRendering,
	StatusRendered,
	StatusPublishing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusRendering:  {},
	StatusPublishing: {},
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions return an in-flight job to the start of its stage.
var stageRollbackTransitions = []statusTransition{
	{from: StatusRendering, to: StatusPending},
	{from: StatusPublishing, to: StatusRendered},
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	MissingColumns   []string `json:"missing_columns,omitempty"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalJobs        int      `json:"total_jobs"`
	Error            string   `json:"error,omitempty"`
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}

// Job is one accepted render request persisted in SQLite.
type Job struct {
	ID              int64      `json:"id"`
	VideoID         string     `json:"video_id"`
	Bucket          string     `json:"storage_bucket,omitempty"`
	TranscriptKey   string     `json:"transcript_key"`
	AudioKey        string     `json:"audio_key"`
	Status          Status     `json:"status"`
	VideoKey        string     `json:"video_key,omitempty"`
	ClipCount       int        `json:"clip_count,omitempty"`
	Placeholders    int        `json:"placeholders,omitempty"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
	Attempts        int        `json:"attempts"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ExceptionType   string     `json:"exception_type,omitempty"`
	ProgressStage   string     `json:"progress_stage,omitempty"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// NewJob carries the fields accepted from a render request.
type NewJob struct {
	VideoID       string
	Bucket        string
	TranscriptKey string
	AudioKey      string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the job is mid-stage.
func (j Job) IsProcessing() bool {
	_, ok := processingStatuses[j.Status]
	return ok
}

// IsTerminal reports whether the job will not progress without operator action.
func (j Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// SetProgress updates the progress fields together.
func (j *Job) SetProgress(stage, message string) {
	j.ProgressStage = stage
	j.ProgressMessage = message
}

// SetFailed marks the job as failed with the given error.
func (j *Job) SetFailed(message, exceptionType string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ExceptionType = exceptionType
	j.ProgressStage = "Failed"
	j.ProgressMessage = message
	j.LastHeartbeat = nil
}

// SetCompleted marks the job as finished.
func (j *Job) SetCompleted(now time.Time) {
	completed := now.UTC()
	j.Status = StatusCompleted
	j.CompletedAt = &completed
	j.ErrorMessage = ""
	j.ExceptionType = ""
	j.LastHeartbeat = nil
	j.SetProgress("Completed", "Video published")
}
