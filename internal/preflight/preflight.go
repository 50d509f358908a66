package preflight

import (
	"context"

	"storyreel/internal/config"
	"storyreel/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Pinger is the storage capability used by the bucket check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunWorker executes the checks the render worker needs.
func RunWorker(ctx context.Context, cfg *config.Config, bucket Pinger) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result
	results = append(results, CheckBinaries(deps.WorkerRequirements(cfg))...)
	results = append(results, CheckFont(cfg.Render.FontPath))
	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	if bucket != nil {
		results = append(results, CheckBucket(ctx, cfg.Storage.Bucket, bucket))
	}
	return results
}

// RunOrchestrator executes the checks the story generator needs.
func RunOrchestrator(ctx context.Context, cfg *config.Config, bucket Pinger) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result
	results = append(results, CheckLLM(ctx, "Story LLM", cfg.LLM))
	results = append(results, CheckSecret("Voice API key", cfg.TTS.APIKey))
	if bucket != nil {
		results = append(results, CheckBucket(ctx, cfg.Storage.Bucket, bucket))
	}
	results = append(results, CheckPod(ctx, cfg))
	return results
}

// RunAll executes every check once. The bucket check is shared.
func RunAll(ctx context.Context, cfg *config.Config, bucket Pinger) []Result {
	results := RunOrchestrator(ctx, cfg, bucket)
	return append(results, RunWorker(ctx, cfg, nil)...)
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
