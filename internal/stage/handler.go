// Package stage defines what the workflow manager expects from a pipeline
// stage and the job conversions the render and publish stages share.
package stage

import (
	"context"
	"log/slog"

	"storyreel/internal/queue"
)

// Handler is one step of the render pipeline. Prepare runs before the job
// enters the stage's processing status; Execute does the work.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}

// LoggerAware handlers receive the per-job logger before they run.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// Health is a stage's readiness as reported by /health and `storyreel status`.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy reports name as ready.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy reports name as not ready because of detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}
