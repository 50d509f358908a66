package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storyreel/internal/config"
	"storyreel/internal/metrics"
	"storyreel/internal/notifications"
	"storyreel/internal/preflight"
	"storyreel/internal/queue"
)

const (
	errorRetryInterval = 5 * time.Second
	minPollInterval    = 10 * time.Millisecond
)

// IdleHook runs once each time the queue drains after activity.
type IdleHook func(ctx context.Context, summary QueueSummary)

// FailureHook records a stage failure outside the queue, such as the error
// artifact in object storage.
type FailureHook func(ctx context.Context, job *queue.Job, stageErr error) error

// PreflightFunc returns readiness results checked before the manager starts.
type PreflightFunc func(ctx context.Context) []preflight.Result

// QueueSummary describes one burst of activity ending with an empty queue.
type QueueSummary struct {
	Processed int
	Failed    int
	Duration  time.Duration
}

// Manager coordinates queue processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service
	metrics      *metrics.Registry
	idleHook     IdleHook
	failureHook  FailureHook
	preflight    PreflightFunc

	heartbeat *HeartbeatMonitor
	jobLogs   *JobLogger

	stages       []pipelineStage
	stageByStart map[queue.Status]pipelineStage
	statusOrder  []queue.Status

	wake chan struct{}

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job

	activity queueActivity
}

type queueActivity struct {
	active    bool
	start     time.Time
	processed int
	failed    int
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier overrides the notifier built from config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithMetrics records job transitions and stage timings.
func WithMetrics(reg *metrics.Registry) ManagerOption {
	return func(m *Manager) { m.metrics = reg }
}

// WithIdleHook sets the hook run when the queue drains.
func WithIdleHook(hook IdleHook) ManagerOption {
	return func(m *Manager) { m.idleHook = hook }
}

// WithFailureHook sets the hook run for every failed stage.
func WithFailureHook(hook FailureHook) ManagerOption {
	return func(m *Manager) { m.failureHook = hook }
}

// WithPreflight sets the checks Start runs before processing.
func WithPreflight(fn PreflightFunc) ManagerOption {
	return func(m *Manager) { m.preflight = fn }
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if poll < minPollInterval {
		poll = minPollInterval
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifications.NewService(cfg),
		pollInterval: poll,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		jobLogs:      NewJobLogger(cfg),
		stageByStart: make(map[queue.Status]pipelineStage),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wake interrupts the poll wait so a newly enqueued job starts immediately.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
