package stage

import (
	"storyreel/internal/queue"
	"storyreel/internal/render"
	"storyreel/internal/services"
)

// RenderJob converts a queued job into the renderer's input.
// Invalid jobs return a services.ErrValidation suitable for stage Execute methods.
func RenderJob(job *queue.Job) (render.Job, error) {
	if job == nil {
		return render.Job{}, services.Wrap(services.ErrValidation, "stage", "load job", "queue job missing", nil)
	}
	rj := render.Job{
		Bucket:        job.Bucket,
		TranscriptKey: job.TranscriptKey,
		AudioKey:      job.AudioKey,
		VideoID:       job.VideoID,
	}
	if err := rj.Validate(); err != nil {
		return render.Job{}, err
	}
	return rj, nil
}

// Output rebuilds the render result recorded on a job.
func Output(job *queue.Job) render.Output {
	return render.Output{
		VideoID:      job.VideoID,
		VideoKey:     job.VideoKey,
		Duration:     job.DurationSeconds,
		ClipCount:    job.ClipCount,
		Placeholders: job.Placeholders,
	}
}
