package preflight

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storyreel/internal/config"
	"storyreel/internal/services/runpod"
)

// CheckPod reports the GPU pod's current state using the start credentials.
// A stopped pod passes; the orchestrator starts it on demand.
func CheckPod(ctx context.Context, cfg *config.Config) Result {
	const name = "GPU pod"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Pod.APIKey) == "" || strings.TrimSpace(cfg.Pod.PodID) == "" {
		return Result{Name: name, Detail: "Missing API key or pod id"}
	}
	client := runpod.NewClient(runpod.Config{
		APIKey:      cfg.Pod.APIKey,
		PodID:       cfg.Pod.PodID,
		RESTBaseURL: cfg.Pod.RESTBaseURL,
		GraphQLURL:  cfg.Pod.GraphQLURL,
	}, &http.Client{Timeout: 10 * time.Second})

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	status, err := client.Status(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("status check failed (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: PodDetail(status)}
}

// PodDetail renders a display-friendly pod summary for status output.
func PodDetail(status runpod.PodStatus) string {
	label := strings.TrimSpace(status.Name)
	if label == "" {
		label = status.ID
	}
	state := strings.ToLower(strings.TrimSpace(status.DesiredStatus))
	if state == "" {
		state = "unknown"
	}
	if status.Ready() {
		return fmt.Sprintf("%s %s, up %ds", label, state, *status.UptimeSeconds)
	}
	return fmt.Sprintf("%s %s", label, state)
}
