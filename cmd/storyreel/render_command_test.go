package main

import (
	"context"
	"errors"
	"testing"

	"storyreel/internal/logging"
	"storyreel/internal/queue"
	"storyreel/internal/render"
	"storyreel/internal/services"
	"storyreel/internal/stage"
	"storyreel/internal/testsupport"
	"storyreel/internal/transcript"
	"storyreel/internal/workflow"
)

type fakeStage struct {
	calls int
	err   error
}

func (s *fakeStage) Prepare(context.Context, *queue.Job) error { return nil }
func (s *fakeStage) Execute(_ context.Context, job *queue.Job) error {
	s.calls++
	if s.err == nil {
		job.VideoKey = transcript.VideoKey(job.VideoID)
	}
	return s.err
}
func (s *fakeStage) HealthCheck(context.Context) stage.Health { return stage.Healthy("fake") }

func renderRequest(videoID string) render.Job {
	return render.Job{
		Bucket:        "test-bucket",
		TranscriptKey: transcript.TranscriptKey(videoID),
		AudioKey:      transcript.AudioKey(videoID),
		VideoID:       videoID,
	}
}

func TestPrepareRenderJobReusesAndRetries(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	job, err := prepareRenderJob(ctx, env.store, renderRequest("20260101_aaaaaaaa"))
	if err != nil {
		t.Fatalf("prepareRenderJob: %v", err)
	}
	again, err := prepareRenderJob(ctx, env.store, renderRequest("20260101_aaaaaaaa"))
	if err != nil {
		t.Fatalf("prepareRenderJob again: %v", err)
	}
	if again.ID != job.ID {
		t.Fatalf("expected pending job %d to be reused, got %d", job.ID, again.ID)
	}

	failJob(t, env.store, again, "boom")
	retried, err := prepareRenderJob(ctx, env.store, renderRequest("20260101_aaaaaaaa"))
	if err != nil {
		t.Fatalf("prepareRenderJob retry: %v", err)
	}
	if retried.ID != job.ID || retried.Status != queue.StatusPending {
		t.Fatalf("expected failed job to be retried in place, got %+v", retried)
	}

	retried.SetCompleted(retried.UpdatedAt)
	if err := env.store.Update(ctx, retried); err != nil {
		t.Fatalf("Update: %v", err)
	}
	fresh, err := prepareRenderJob(ctx, env.store, renderRequest("20260101_aaaaaaaa"))
	if err != nil {
		t.Fatalf("prepareRenderJob after completion: %v", err)
	}
	if fresh.ID == job.ID {
		t.Fatal("expected a new job after completion")
	}
}

func TestRunRenderStagesCompletesJob(t *testing.T) {
	env := setupCLITestEnv(t)
	job := testsupport.NewJob(t, env.store, "20260101_aaaaaaaa")
	renderer, publisher := &fakeStage{}, &fakeStage{}
	stages := workflow.StageSet{Renderer: renderer, Publisher: publisher}
	backend := testsupport.NewMemoryStore("test-bucket")

	if err := runRenderStages(context.Background(), env.store, backend, nil, stages, job, logging.NewNop()); err != nil {
		t.Fatalf("runRenderStages: %v", err)
	}
	if renderer.calls != 1 || publisher.calls != 1 {
		t.Fatalf("expected both stages once, got render=%d publish=%d", renderer.calls, publisher.calls)
	}
	got, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestRunRenderStagesRecordsFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	job := testsupport.NewJob(t, env.store, "20260101_aaaaaaaa")
	cause := services.Wrap(services.ErrExternalTool, "render", "compose", "ffmpeg exited", nil)
	renderer, publisher := &fakeStage{err: cause}, &fakeStage{}
	backend := testsupport.NewMemoryStore("test-bucket")

	err := runRenderStages(context.Background(), env.store, backend, nil,
		workflow.StageSet{Renderer: renderer, Publisher: publisher}, job, logging.NewNop())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if publisher.calls != 0 {
		t.Fatal("publish must not run after a render failure")
	}
	if _, ok := backend.Object(transcript.ErrorKey(job.VideoID)); !ok {
		t.Fatalf("expected error artifact, have %v", backend.Keys())
	}
}

func TestRunRenderStagesRefusesInFlightJob(t *testing.T) {
	env := setupCLITestEnv(t)
	job := testsupport.NewJob(t, env.store, "20260101_aaaaaaaa")
	job.Status = queue.StatusRendering
	err := runRenderStages(context.Background(), env.store, testsupport.NewMemoryStore("test-bucket"), nil,
		workflow.StageSet{Renderer: &fakeStage{}, Publisher: &fakeStage{}}, job, logging.NewNop())
	if err == nil {
		t.Fatal("expected in-flight job to be refused")
	}
}
