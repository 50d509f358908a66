package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"storyreel/internal/alignment"
	"storyreel/internal/dispatch"
	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/notifications"
	"storyreel/internal/script"
	"storyreel/internal/services"
	"storyreel/internal/services/tts"
	"storyreel/internal/storage"
	"storyreel/internal/transcript"
)

// ScriptWriter plans stories and writes scripts and clip prompts.
type ScriptWriter interface {
	Plan() script.Plan
	Generate(ctx context.Context, plan script.Plan) (script.Script, error)
	ImagePrompt(ctx context.Context, s script.Script, idx int) (script.ClipPrompt, bool)
}

// Synthesizer turns text into timed speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (tts.Result, error)
}

// Trigger hands a stored video to the render worker.
type Trigger interface {
	Trigger(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// Result is the outcome of one run. Failures are reported here rather than
// returned as errors.
type Result struct {
	Success       bool                 `json:"success"`
	StatusCode    int                  `json:"statusCode"`
	VideoID       string               `json:"video_id,omitempty"`
	Title         string               `json:"title,omitempty"`
	ClipCount     int                  `json:"clip_count,omitempty"`
	Resolved      int                  `json:"resolved_clips,omitempty"`
	Duration      float64              `json:"duration,omitempty"`
	Error         string               `json:"error,omitempty"`
	ExceptionType string               `json:"exception_type,omitempty"`
	Triggered     bool                 `json:"triggered"`
	Worker        map[string]any       `json:"worker,omitempty"`
	Metadata      *transcript.Metadata `json:"metadata,omitempty"`
}

// Orchestrator wires the generation pipeline.
type Orchestrator struct {
	writer      ScriptWriter
	voice       Synthesizer
	store       storage.Store
	trigger     Trigger
	notifier    notifications.Service
	metrics     *metrics.Registry
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
	rand        *rand.Rand
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithNotifier publishes generation outcomes.
func WithNotifier(n notifications.Service) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithMetrics records run counters and durations.
func WithMetrics(m *metrics.Registry) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithConcurrency bounds concurrent clip prompt requests.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithClock overrides the time source used for video ids.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRand fixes the randomness used for video ids.
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) { o.rand = r }
}

// New constructs an orchestrator.
func New(writer ScriptWriter, voice Synthesizer, store storage.Store, trigger Trigger, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		writer:      writer,
		voice:       voice,
		store:       store,
		trigger:     trigger,
		notifier:    notifications.NewService(nil),
		logger:      logger,
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the pipeline once. It never panics and never returns an
// error; upstream failures become a 500 result with the failure kind.
func (o *Orchestrator) Run(ctx context.Context) (result Result) {
	start := time.Now()
	videoID := transcript.NewVideoID(o.now(), o.rand)
	ctx = services.WithVideoID(ctx, videoID)
	logger := logging.WithContext(ctx, o.logger)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.Error("generation panicked", logging.Error(err), logging.String("stack", string(debug.Stack())))
			result = o.fail(ctx, videoID, err)
		}
		o.metrics.ObserveGeneration(result.Success, time.Since(start))
	}()

	logger.Info("generation started", logging.String(logging.FieldEventType, "generation_started"))
	res, err := o.run(ctx, logger, videoID)
	if err != nil {
		return o.fail(ctx, videoID, err)
	}
	logger.Info("generation finished",
		logging.String(logging.FieldEventType, "generation_finished"),
		logging.Bool("triggered", res.Triggered),
		logging.Duration("elapsed", time.Since(start)),
	)
	return res
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, videoID string) (Result, error) {
	plan := o.writer.Plan()
	logger.Info("story planned",
		logging.Int("story_seconds", plan.DurationSeconds),
		logging.Int("planned_clips", plan.ClipCount),
		logging.Int("total_words", plan.TotalWords()),
	)
	s, err := o.writer.Generate(ctx, plan)
	if err != nil {
		return Result{}, err
	}
	text := strings.TrimSpace(s.FullText())

	speech, err := o.voice.Synthesize(ctx, text)
	if err != nil {
		return Result{}, err
	}
	logger.Info("voiceover synthesized",
		logging.String("voice_id", speech.VoiceID),
		logging.Int("audio_bytes", len(speech.Audio)),
		logging.Float64("duration_seconds", speech.Timing.Duration()),
	)
	words := alignment.Words(speech.Timing)

	prompts := o.clipPrompts(ctx, logger, s)
	clips := make([]transcript.ClipAlignment, len(s.ClipTexts))
	for i, clipText := range s.ClipTexts {
		clips[i] = transcript.AlignClip(i, clipText, words, prompts[i])
		if !clips[i].Resolved() {
			logger.Warn("clip text not found in spoken words",
				logging.Int("clip_index", i),
				logging.String("clip_text", clipText),
				logging.String(logging.FieldEventType, "clip_unaligned"),
				logging.String(logging.FieldImpact, "clip rendered with zero duration"),
			)
		}
	}
	bundle := transcript.NewBundle(text, speech.Timing, words, clips)

	meta := transcript.Metadata{
		VideoID:       videoID,
		Title:         s.Title,
		Description:   s.Description,
		Hashtags:      s.Hashtags,
		Script:        text,
		TranscriptKey: transcript.TranscriptKey(videoID),
		AudioKey:      transcript.AudioKey(videoID),
		Duration:      bundle.Duration,
		ClipCount:     bundle.ClipCount,
		Status:        transcript.StatusProcessing,
	}
	if err := o.persist(ctx, meta, bundle, speech.Audio); err != nil {
		return Result{}, err
	}
	logger.Info("artifacts stored",
		logging.String("bucket", o.store.Bucket()),
		logging.Int("resolved_clips", bundle.Resolved()),
		logging.Int("clip_count", bundle.ClipCount),
	)
	o.publish(ctx, logger, notifications.EventStoryGenerated, notifications.Payload{
		"title":     s.Title,
		"clipCount": bundle.ClipCount,
		"videoID":   videoID,
	})

	res := Result{
		Success:    true,
		StatusCode: 200,
		VideoID:    videoID,
		Title:      s.Title,
		ClipCount:  bundle.ClipCount,
		Resolved:   bundle.Resolved(),
		Duration:   bundle.Duration,
		Metadata:   &meta,
	}
	if o.trigger == nil {
		logger.Info("render trigger disabled", logging.String(logging.FieldEventType, "render_skipped"))
		return res, nil
	}
	worker, err := o.trigger.Trigger(ctx, dispatch.NewRequest(o.store.Bucket(), videoID))
	if err != nil {
		return Result{}, err
	}
	if worker == nil {
		logger.Warn("render was not triggered; artifacts remain in storage",
			logging.String(logging.FieldEventType, "render_not_triggered"),
			logging.String(logging.FieldErrorHint, "retry with 'storyreel generate --video-id' once the pod is available"),
		)
		return res, nil
	}
	res.Triggered = true
	res.Worker = worker.Body
	return res, nil
}

// Redispatch triggers the render of an already stored video.
func (o *Orchestrator) Redispatch(ctx context.Context, videoID string) Result {
	ctx = services.WithVideoID(ctx, videoID)
	logger := logging.WithContext(ctx, o.logger)
	if !transcript.ValidVideoID(videoID) {
		return o.fail(ctx, videoID, services.Wrap(services.ErrValidation, "orchestrator", "redispatch", "invalid video id", nil))
	}
	var meta transcript.Metadata
	if err := storage.GetJSON(ctx, o.store, transcript.MetadataKey(videoID), &meta); err != nil {
		return o.fail(ctx, videoID, err)
	}
	res := Result{Success: true, StatusCode: 200, VideoID: videoID, Title: meta.Title, ClipCount: meta.ClipCount, Duration: meta.Duration, Metadata: &meta}
	if o.trigger == nil {
		return res
	}
	worker, err := o.trigger.Trigger(ctx, dispatch.NewRequest(o.store.Bucket(), videoID))
	if err != nil {
		return o.fail(ctx, videoID, err)
	}
	if worker == nil {
		logger.Warn("render was not triggered", logging.String(logging.FieldEventType, "render_not_triggered"))
		return res
	}
	res.Triggered = true
	res.Worker = worker.Body
	return res
}

// clipPrompts builds every clip's prompt concurrently. Results keep clip order
// and every slot is filled, falling back to the clip text on failure.
func (o *Orchestrator) clipPrompts(ctx context.Context, logger *slog.Logger, s script.Script) []script.ClipPrompt {
	prompts := make([]script.ClipPrompt, len(s.ClipTexts))
	fallbacks := make([]bool, len(s.ClipTexts))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i := range s.ClipTexts {
		g.Go(func() error {
			prompts[i], fallbacks[i] = o.writer.ImagePrompt(ctx, s, i)
			return nil
		})
	}
	_ = g.Wait()
	fallbackCount := 0
	for _, fb := range fallbacks {
		if fb {
			fallbackCount++
		}
	}
	o.metrics.AddPromptFallbacks(fallbackCount)
	logger.Info("clip prompts generated",
		logging.Int("clip_count", len(prompts)),
		logging.Int("fallbacks", fallbackCount),
	)
	return prompts
}

func (o *Orchestrator) persist(ctx context.Context, meta transcript.Metadata, bundle transcript.Bundle, audio []byte) error {
	if err := storage.PutJSON(ctx, o.store, meta.TranscriptKey, bundle); err != nil {
		return services.Wrap(services.ErrTransient, "orchestrator", "store transcript", meta.TranscriptKey, err)
	}
	if err := o.store.Put(ctx, meta.AudioKey, audio, storage.ContentTypeMP3); err != nil {
		return services.Wrap(services.ErrTransient, "orchestrator", "store audio", meta.AudioKey, err)
	}
	if err := storage.PutJSON(ctx, o.store, transcript.MetadataKey(meta.VideoID), meta); err != nil {
		return services.Wrap(services.ErrTransient, "orchestrator", "store metadata", transcript.MetadataKey(meta.VideoID), err)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, videoID string, err error) Result {
	logger := logging.WithContext(ctx, o.logger)
	msg := "Error occurred: " + err.Error()
	kind := services.ExceptionType(err)
	if errors.Is(err, context.Canceled) {
		kind = "Cancelled"
	}
	logger.Error("generation failed",
		logging.Error(err),
		logging.String("exception_type", kind),
		logging.String(logging.FieldEventType, "generation_failed"),
	)
	o.publish(ctx, logger, notifications.EventGenerationFailed, notifications.Payload{"videoID": videoID, "error": err})
	return Result{
		Success:       false,
		StatusCode:    500,
		VideoID:       videoID,
		Error:         msg,
		ExceptionType: kind,
	}
}

func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := o.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logger.Warn("notification failed", logging.Error(err), logging.String("event", string(event)))
	}
}
