package stageexec_test

import (
	"context"
	"errors"
	"testing"

	"storyreel/internal/logging"
	"storyreel/internal/queue"
	"storyreel/internal/stage"
	"storyreel/internal/stageexec"
	"storyreel/internal/testsupport"
)

type fakeHandler struct {
	err error
}

func (f fakeHandler) Prepare(context.Context, *queue.Job) error { return nil }

func (f fakeHandler) Execute(_ context.Context, job *queue.Job) error {
	if f.err != nil {
		return f.err
	}
	job.VideoKey = "videos/" + job.VideoID + ".mp4"
	return nil
}

func (fakeHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy("fake") }

func TestRunAdvancesJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "vid-run")

	err := stageexec.Run(context.Background(), stageexec.Options{
		Logger:     logging.NewNop(),
		Store:      store,
		Handler:    fakeHandler{},
		StageName:  "render",
		Processing: queue.StatusRendering,
		Done:       queue.StatusRendered,
		Job:        job,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	stored, _ := store.GetByID(context.Background(), job.ID)
	if stored.Status != queue.StatusRendered || stored.VideoKey != "videos/vid-run.mp4" || stored.LastHeartbeat != nil {
		t.Fatalf("unexpected job %#v", stored)
	}
}

func TestRunRecordsFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "vid-fail")
	boom := errors.New("boom")
	var recorded error

	err := stageexec.Run(context.Background(), stageexec.Options{
		Store:      store,
		Handler:    fakeHandler{err: boom},
		StageName:  "render",
		Processing: queue.StatusRendering,
		Done:       queue.StatusRendered,
		Job:        job,
		OnFailure: func(_ context.Context, _ *queue.Job, err error) error {
			recorded = err
			return nil
		},
	})
	if !errors.Is(err, boom) || !errors.Is(recorded, boom) {
		t.Fatalf("expected boom, got %v (recorded %v)", err, recorded)
	}
	stored, _ := store.GetByID(context.Background(), job.ID)
	if stored.Status != queue.StatusFailed || stored.ErrorMessage != "boom" || stored.ExceptionType != "Exception" {
		t.Fatalf("unexpected job %#v", stored)
	}
}

func TestRunRequiresHandler(t *testing.T) {
	if err := stageexec.Run(context.Background(), stageexec.Options{StageName: "render"}); err == nil {
		t.Fatal("expected error")
	}
}
