package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"storyreel/internal/config"
	"storyreel/internal/deps"
	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/notifications"
	"storyreel/internal/queue"
	"storyreel/internal/render"
	"storyreel/internal/services"
	"storyreel/internal/workflow"
)

// Daemon coordinates the render worker services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	notifier notifications.Service
	metrics  *metrics.Registry
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	QueueDBPath  string                 `json:"queue_db_path"`
	LockFilePath string                 `json:"lock_file_path"`
	Dependencies []deps.Status          `json:"dependencies"`
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithNotifier publishes queue events.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithMetrics records accepted jobs and serves /metrics.
func WithMetrics(m *metrics.Registry) Option {
	return func(d *Daemon) { d.metrics = m }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		workflow: wf,
		notifier: notifications.NewService(nil),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, reclaims interrupted jobs, launches the
// workflow manager, and opens the HTTP listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another storyreel daemon instance is already running")
	}

	if reset, err := d.store.ResetStuckProcessing(ctx); err != nil {
		d.logger.Warn("reset interrupted jobs failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_reset_failed"),
			logging.String(logging.FieldErrorHint, "check queue database permissions"),
			logging.String(logging.FieldImpact, "interrupted jobs stay in flight until reclaimed"),
		)
	} else if reset > 0 {
		d.logger.Info("interrupted jobs reset", logging.Int64("count", reset))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.release()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.release()
		return err
	}

	d.running.Store(true)
	d.logger.Info("storyreel daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.API.Bind),
	)
	return nil
}

func (d *Daemon) release() {
	if d.cancel != nil {
		d.cancel()
	}
	_ = d.lock.Unlock()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops the listener and background processing, then releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("storyreel daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit validates and enqueues a render request. created is false when an
// active job for the same video already exists.
func (d *Daemon) Submit(ctx context.Context, req render.Job) (*queue.Job, bool, error) {
	if strings.TrimSpace(req.Bucket) == "" {
		req.Bucket = d.cfg.Storage.Bucket
	}
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	job, created, err := d.store.Enqueue(ctx, queue.NewJob{
		VideoID:       strings.TrimSpace(req.VideoID),
		Bucket:        strings.TrimSpace(req.Bucket),
		TranscriptKey: strings.TrimSpace(req.TranscriptKey),
		AudioKey:      strings.TrimSpace(req.AudioKey),
	})
	if err != nil {
		return nil, false, services.Wrap(services.ErrTransient, "daemon", "enqueue", "Failed to queue render job", err)
	}

	ctx = services.WithVideoID(services.WithJobID(ctx, job.ID), job.VideoID)
	logger := logging.WithContext(ctx, d.logger)
	if !created {
		logger.Info("render job already queued",
			logging.String(logging.FieldEventType, "job_deduplicated"),
			logging.String("status", string(job.Status)),
		)
		d.workflow.Wake()
		return job, false, nil
	}

	d.metrics.JobAccepted()
	logger.Info("render job queued",
		logging.String(logging.FieldEventType, "job_queued"),
		logging.String("bucket", job.Bucket),
		logging.String("transcript_key", job.TranscriptKey),
	)
	if err := d.notifier.Publish(ctx, notifications.EventVideoQueued, notifications.Payload{
		"videoID": job.VideoID,
		"jobID":   job.ID,
	}); err != nil {
		logging.WarnWithContext(logger, "queued notification failed", "notification_failed",
			logging.String(logging.FieldImpact, "operator was not told about the queued render"),
			logging.Error(err),
		)
	}
	d.workflow.Wake()
	return job, true, nil
}

// ListJobs returns queue jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error) {
	return d.store.List(ctx, statuses...)
}

// Job returns one job or nil when it does not exist.
func (d *Daemon) Job(ctx context.Context, id int64) (*queue.Job, error) {
	return d.store.GetByID(ctx, id)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: deps.CheckBinaries(deps.WorkerRequirements(d.cfg)),
	}
}
