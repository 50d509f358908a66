package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"storyreel/internal/config"
	"storyreel/internal/logging"
	"storyreel/internal/queue"
	"storyreel/internal/transcript"
)

// JobLogger manages one JSON log file per video under {log_dir}/jobs.
type JobLogger struct {
	baseDir string
	level   string
}

// NewJobLogger creates a job logger. It returns nil when no log directory is
// configured.
func NewJobLogger(cfg *config.Config) *JobLogger {
	if cfg == nil || strings.TrimSpace(cfg.Paths.LogDir) == "" {
		return nil
	}
	return &JobLogger{
		baseDir: filepath.Join(cfg.Paths.LogDir, "jobs"),
		level:   cfg.Logging.Level,
	}
}

// Path returns the log file of a job.
func (l *JobLogger) Path(job *queue.Job) (string, error) {
	if job == nil {
		return "", fmt.Errorf("queue job is nil")
	}
	name := strings.TrimSpace(job.VideoID)
	if !transcript.ValidVideoID(name) {
		name = fmt.Sprintf("job-%d", job.ID)
	}
	return filepath.Join(l.baseDir, name+".log"), nil
}

// Open prepares the job's log file and returns a handler writing to it. The
// caller closes the returned closer when the stage ends.
func (l *JobLogger) Open(job *queue.Job) (slog.Handler, io.Closer, error) {
	path, err := l.Path(job)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure job log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, nil, fmt.Errorf("open job log: %w", err)
	}
	handler := logging.NewJSONHandler(file, l.level).WithAttrs([]slog.Attr{slog.Int64(logging.FieldJobID, job.ID)})
	return handler, file, nil
}
