// Package dispatch starts the GPU pod, waits for its runtime to come up, and
// hands a render request to the worker running on it.
//
// Every wait is bounded. Giving up is not an error: Trigger returns a nil
// result and logs why, since the artifacts are already in storage and the
// render can be retried later.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storyreel/internal/logging"
	"storyreel/internal/retry"
	"storyreel/internal/services/runpod"
	"storyreel/internal/transcript"
)

// Pod is the lifecycle surface the dispatcher needs.
type Pod interface {
	Start(ctx context.Context) error
	Status(ctx context.Context) (runpod.PodStatus, error)
}

// HTTPDoer describes the HTTP client used to call the worker.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is the render trigger payload. The legacy field names are sent too
// so older workers accept it.
type Request struct {
	StorageBucket string `json:"storage_bucket"`
	TranscriptKey string `json:"transcript_key"`
	AudioKey      string `json:"audio_key"`
	JobID         string `json:"job_id"`
	S3Bucket      string `json:"s3_bucket,omitempty"`
	VideoID       string `json:"video_id,omitempty"`
}

// NewRequest builds the payload for a stored video.
func NewRequest(bucket, videoID string) Request {
	return Request{
		StorageBucket: bucket,
		TranscriptKey: transcript.TranscriptKey(videoID),
		AudioKey:      transcript.AudioKey(videoID),
		JobID:         videoID,
		S3Bucket:      bucket,
		VideoID:       videoID,
	}
}

// Result is the worker's decoded response.
type Result struct {
	StatusCode int
	Body       map[string]any
}

// Settings bounds every wait.
type Settings struct {
	StartAttempts  int
	StartInterval  time.Duration
	ReadyChecks    int
	ReadyInterval  time.Duration
	Warmup         time.Duration
	RequestTimeout time.Duration
	WorkerURL      string
}

// Dispatcher triggers renders on the pod.
type Dispatcher struct {
	pod      Pod
	client   HTTPDoer
	settings Settings
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

// New constructs a dispatcher. client may be nil.
func New(pod Pod, client HTTPDoer, settings Settings, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{pod: pod, client: client, settings: settings, logger: logger, sleep: retry.Sleep}
}

// WithSleep overrides waiting; tests use it to avoid real delays.
func (d *Dispatcher) WithSleep(sleep func(context.Context, time.Duration) error) *Dispatcher {
	if sleep != nil {
		d.sleep = sleep
	}
	return d
}

// Trigger starts the pod and posts req to the worker. Each cycle sends a
// start request and then polls the runtime up to ReadyChecks times; a cycle
// whose start fails or whose pod never comes up is repeated, up to
// StartAttempts cycles. It returns (nil, nil) when every cycle gave up or the
// worker call fails. Only context cancellation is returned as an error.
func (d *Dispatcher) Trigger(ctx context.Context, req Request) (*Result, error) {
	logger := logging.WithContext(ctx, d.logger)

	cycles, err := retry.Poll(ctx, d.policy(d.settings.StartAttempts, d.settings.StartInterval), func(ctx context.Context, cycle int) (bool, error) {
		return d.startAndWait(ctx, logger, cycle)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("pod never became ready; render not triggered",
			logging.Int("cycles", cycles),
			logging.String("bounds", d.settings.String()),
			logging.Error(err),
			logging.String(logging.FieldEventType, "pod_start_gave_up"),
			logging.String(logging.FieldErrorHint, "check pod availability and RUNPOD_API_KEY"),
			logging.String(logging.FieldImpact, "artifacts stored but video not rendered"),
		)
		return nil, nil
	}
	logger.Info("pod runtime ready", logging.Int("cycles", cycles), logging.Duration("warmup", d.settings.Warmup))

	if err := d.sleep(ctx, d.settings.Warmup); err != nil {
		return nil, err
	}
	return d.post(ctx, logger, req)
}

// startAndWait runs one start-plus-readiness cycle.
func (d *Dispatcher) startAndWait(ctx context.Context, logger *slog.Logger, cycle int) (bool, error) {
	if err := d.pod.Start(ctx); err != nil {
		logger.Warn("pod start request failed",
			logging.Int("cycle", cycle),
			logging.Error(err),
			logging.String(logging.FieldEventType, "pod_start_retry"),
		)
		return false, err
	}
	logger.Info("pod start accepted", logging.Int("cycle", cycle))

	checks, err := retry.Poll(ctx, d.policy(d.settings.ReadyChecks, d.settings.ReadyInterval), func(ctx context.Context, check int) (bool, error) {
		status, err := d.pod.Status(ctx)
		if err != nil {
			logger.Debug("pod status unavailable", logging.Int("check", check), logging.Error(err))
			return false, err
		}
		logger.Debug("pod status",
			logging.Int("cycle", cycle),
			logging.Int("check", check),
			logging.String("desired_status", status.DesiredStatus),
			logging.Bool("ready", status.Ready()),
		)
		return status.Ready(), nil
	})
	if err != nil {
		if ctx.Err() == nil {
			logger.Info("pod runtime not up yet; starting a new cycle",
				logging.Int("cycle", cycle),
				logging.Int("checks", checks),
				logging.String(logging.FieldEventType, "pod_ready_retry"),
			)
		}
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) post(ctx context.Context, logger *slog.Logger, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		logger.Warn("encode render request failed", logging.Error(err))
		return nil, nil
	}
	callCtx := ctx
	if d.settings.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.settings.RequestTimeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, d.settings.WorkerURL, bytes.NewReader(body))
	if err != nil {
		logger.Warn("build render request failed", logging.Error(err), logging.String("worker_url", d.settings.WorkerURL))
		return nil, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	logger.Info("calling render worker", logging.String("worker_url", d.settings.WorkerURL))

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		event := "worker_call_failed"
		if errors.Is(err, context.DeadlineExceeded) {
			event = "worker_call_timeout"
		}
		logger.Warn("render worker call failed; the render may still be running",
			logging.Error(err),
			logging.String(logging.FieldEventType, event),
		)
		return nil, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("render worker rejected request",
			logging.Int("status_code", resp.StatusCode),
			logging.String("body", strings.TrimSpace(string(raw))),
			logging.String(logging.FieldEventType, "worker_rejected"),
		)
		return nil, nil
	}
	result := &Result{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &result.Body); err != nil {
			logger.Warn("render worker response is not JSON", logging.Error(err))
			return nil, nil
		}
	}
	logger.Info("render worker accepted request", logging.Int("status_code", resp.StatusCode))
	return result, nil
}

func (d *Dispatcher) policy(attempts int, interval time.Duration) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Interval: interval, Sleep: d.sleep}
}

// String describes the dispatcher bounds for logs.
func (s Settings) String() string {
	return fmt.Sprintf("start=%dx%s ready=%dx%s warmup=%s timeout=%s",
		s.StartAttempts, s.StartInterval, s.ReadyChecks, s.ReadyInterval, s.Warmup, s.RequestTimeout)
}
