// Package daemonrun wires the render worker process: logging, storage, the
// render pipeline, the job queue, and the HTTP daemon.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"storyreel/internal/config"
	"storyreel/internal/daemon"
	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/notifications"
	"storyreel/internal/preflight"
	"storyreel/internal/queue"
	"storyreel/internal/storage"
	"storyreel/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the render worker and blocks until a signal or cmdCtx ends it.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.RequireWorker(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.StateDir, "storyreeld.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	reg := metrics.New()
	releasePod := StartupReleaser(cfg, NewPodStopper(cfg), reg, logger)

	backend, err := storage.Open(signalCtx, cfg.Storage)
	if err != nil {
		logger.Error("open storage", logging.Error(err))
		releasePod(cmdCtx)
		return err
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		releasePod(cmdCtx)
		return err
	}

	notifier := notifications.NewService(cfg)
	mgr := NewManager(cfg, store, backend, notifier, reg, logger)

	d, err := daemon.New(cfg, store, logger, mgr, daemon.WithNotifier(notifier), daemon.WithMetrics(reg))
	if err != nil {
		_ = store.Close()
		releasePod(cmdCtx)
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration, preflight results and queue database access"),
			logging.String(logging.FieldImpact, "render requests are not accepted"),
		)
		releasePod(cmdCtx)
		return err
	}

	<-signalCtx.Done()
	logger.Info("storyreel daemon shutting down")
	return nil
}

// NewManager builds the workflow manager with both stages, the failure
// artifact hook, pod release and worker preflight.
func NewManager(cfg *config.Config, store *queue.Store, backend storage.Backend, notifier notifications.Service, reg *metrics.Registry, logger *slog.Logger) *workflow.Manager {
	managerOpts := []workflow.ManagerOption{
		workflow.WithNotifier(notifier),
		workflow.WithMetrics(reg),
		workflow.WithFailureHook(FailureRecorder(backend)),
		workflow.WithPreflight(func(ctx context.Context) []preflight.Result {
			return preflight.RunWorker(ctx, cfg, backend)
		}),
	}
	if cfg.Workflow.StopPodWhenIdle {
		managerOpts = append(managerOpts, workflow.WithIdleHook(PodReleaser(NewPodStopper(cfg), reg, logger)))
	}
	mgr := workflow.NewManager(cfg, store, logger, managerOpts...)
	mgr.ConfigureStages(Stages(cfg, NewRenderer(cfg, backend, reg, logger), backend, notifier, logger))
	return mgr
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if opts.LogLevel == "" && !opts.Development {
		return logging.NewFromConfig(cfg)
	}
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", filepath.Join(cfg.Paths.LogDir, "storyreeld.log")},
		ErrorOutputPaths: []string{"stderr"},
		Development:      opts.Development,
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := cfg.Render.FFmpegBinary
	ffprobe := cfg.Render.FFprobeBinary
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("imagegen_url", cfg.ImageGen.BaseURL),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobe)),
		logging.String("ffprobe_binary", ffprobe),
		logging.Bool("pod_stop_configured", cfg.CanStopPod()),
		logging.String("storage_backend", cfg.Storage.Backend),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
