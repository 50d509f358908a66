package rendering_test

import (
	"context"
	"errors"
	"testing"

	"storyreel/internal/deps"
	"storyreel/internal/logging"
	"storyreel/internal/queue"
	"storyreel/internal/render"
	"storyreel/internal/rendering"
	"storyreel/internal/services"
	"storyreel/internal/transcript"
)

const videoID = "16_10_2026_12_00_00_oguzhancttnky5f0c6f7e-1c1b-4f59-9d1e-7e3f1d2c4b5a"

type fakeRenderer struct {
	got render.Job
	out render.Output
	err error
}

func (f *fakeRenderer) Render(_ context.Context, job render.Job) (render.Output, error) {
	f.got = job
	return f.out, f.err
}

func newJob() *queue.Job {
	return &queue.Job{
		ID:            7,
		VideoID:       videoID,
		Bucket:        "bucket",
		TranscriptKey: transcript.TranscriptKey(videoID),
		AudioKey:      transcript.AudioKey(videoID),
		Status:        queue.StatusRendering,
	}
}

func TestHandlerRecordsOutput(t *testing.T) {
	renderer := &fakeRenderer{out: render.Output{
		VideoID:      videoID,
		VideoKey:     transcript.VideoKey(videoID),
		Duration:     41.2,
		ClipCount:    9,
		Placeholders: 2,
	}}
	handler := rendering.NewHandler(renderer, nil, logging.NewNop())
	job := newJob()
	ctx := context.Background()

	if err := handler.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if job.Attempts != 1 || job.ProgressStage != "Rendering" {
		t.Fatalf("unexpected prepared job: %#v", job)
	}
	if err := handler.Execute(ctx, job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if renderer.got.Bucket != "bucket" || renderer.got.VideoID != videoID {
		t.Fatalf("renderer got %#v", renderer.got)
	}
	if job.Status != queue.StatusRendered || job.VideoKey != transcript.VideoKey(videoID) {
		t.Fatalf("unexpected job after execute: %#v", job)
	}
	if job.ClipCount != 9 || job.Placeholders != 2 || job.DurationSeconds != 41.2 {
		t.Fatalf("unexpected counts: %#v", job)
	}
	if job.ProgressMessage != "Rendered 9 clips (2 placeholders)" {
		t.Fatalf("unexpected progress message %q", job.ProgressMessage)
	}
}

func TestHandlerPropagatesRenderError(t *testing.T) {
	cause := services.Wrap(services.ErrExternalTool, "render", "compose", "ffmpeg failed", nil)
	handler := rendering.NewHandler(&fakeRenderer{err: cause}, nil, nil)
	err := handler.Execute(context.Background(), newJob())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestHandlerRejectsInvalidJob(t *testing.T) {
	handler := rendering.NewHandler(&fakeRenderer{}, nil, nil)
	job := newJob()
	job.AudioKey = ""
	if err := handler.Prepare(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := rendering.NewHandler(&fakeRenderer{}, []deps.Requirement{{Name: "Shell", Command: "sh"}}, nil)
	if h := healthy.HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("expected ready, got %+v", h)
	}
	missing := rendering.NewHandler(&fakeRenderer{}, []deps.Requirement{{Name: "Nope", Command: "storyreel-missing-binary"}}, nil)
	if h := missing.HealthCheck(context.Background()); h.Ready || h.Detail != "missing Nope" {
		t.Fatalf("expected missing binary detail, got %+v", h)
	}
}
