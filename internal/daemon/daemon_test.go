package daemon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"storyreel/internal/config"
	"storyreel/internal/daemon"
	"storyreel/internal/logging"
	"storyreel/internal/queue"
	"storyreel/internal/render"
	"storyreel/internal/services"
	"storyreel/internal/stage"
	"storyreel/internal/testsupport"
	"storyreel/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Job) error { return nil }
func (noopStage) Execute(context.Context, *queue.Job) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func newDaemon(t *testing.T, cfg *config.Config, opts ...daemon.Option) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Renderer: noopStage{}, Publisher: noopStage{}})
	d, err := daemon.New(cfg, store, logger, mgr, opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("lock path = %q, want %q", status.LockFilePath, cfg.LockPath())
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()

	second, _ := newDaemon(t, cfg)
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected lock contention error")
	}
}

func TestDaemonStartResetsInterruptedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	cfg.Workflow.QueuePollInterval = 1
	d, store := newDaemon(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "01_02_2026_10_00_00_oguzhancttnkyabc")
	job.Status = queue.StatusRendering
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := d.Start(runCtx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	deadline := time.Now().Add(5 * time.Second)
	var last queue.Status
	for time.Now().Before(deadline) {
		got, err := store.GetByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		last = got.Status
		if last == queue.StatusCompleted {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected reclaimed job to complete, last status %s", last)
}

func TestSubmitDefaultsBucketAndDedupes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)
	ctx := context.Background()

	req := render.Job{
		TranscriptKey: "transcripts/vid.json",
		AudioKey:      "audio/vid.mp3",
		VideoID:       "vid",
	}
	job, created, err := d.Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !created {
		t.Fatal("expected first submit to create a job")
	}
	if job.Bucket != cfg.Storage.Bucket {
		t.Fatalf("bucket = %q, want %q", job.Bucket, cfg.Storage.Bucket)
	}

	again, created, err := d.Submit(ctx, req)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if created || again.ID != job.ID {
		t.Fatalf("expected dedupe onto job %d, got %d (created=%v)", job.ID, again.ID, created)
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)

	_, _, err := d.Submit(context.Background(), render.Job{VideoID: "../escape", TranscriptKey: "t", AudioKey: "a"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
