package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storyreel/internal/alignment"
	"storyreel/internal/config"
	"storyreel/internal/logging"
	"storyreel/internal/media/ffprobe"
	"storyreel/internal/metrics"
	"storyreel/internal/services"
	"storyreel/internal/storage"
	"storyreel/internal/transcript"
)

// Job identifies the stored inputs of one video.
type Job struct {
	Bucket        string `json:"storage_bucket"`
	TranscriptKey string `json:"transcript_key"`
	AudioKey      string `json:"audio_key"`
	VideoID       string `json:"job_id"`
}

// Validate reports missing or unsafe fields.
func (j Job) Validate() error {
	var missing []string
	if strings.TrimSpace(j.TranscriptKey) == "" {
		missing = append(missing, "transcript_key")
	}
	if strings.TrimSpace(j.AudioKey) == "" {
		missing = append(missing, "audio_key")
	}
	if strings.TrimSpace(j.VideoID) == "" {
		missing = append(missing, "job_id")
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrValidation, "render", "validate job", "missing "+strings.Join(missing, ", "), nil)
	}
	if !transcript.ValidVideoID(j.VideoID) {
		return services.Wrap(services.ErrValidation, "render", "validate job", fmt.Sprintf("invalid job_id %q", j.VideoID), nil)
	}
	return nil
}

// Output describes a finished render.
type Output struct {
	VideoID      string  `json:"video_id"`
	VideoKey     string  `json:"video_key"`
	Duration     float64 `json:"duration"`
	ClipCount    int     `json:"clip_count"`
	Placeholders int     `json:"placeholders"`
}

// Success converts the output into the worker's result record.
func (o Output) Success() transcript.Success {
	return transcript.Success{
		Success:   true,
		VideoID:   o.VideoID,
		VideoKey:  o.VideoKey,
		Duration:  o.Duration,
		ClipCount: o.ClipCount,
	}
}

// ImageGenerator produces PNG bytes for a prompt pair.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, negative string) ([]byte, error)
}

// ProbeFunc inspects a rendered file.
type ProbeFunc func(ctx context.Context, path string) (ffprobe.Result, error)

// Options configures the renderer.
type Options struct {
	WorkDir       string
	KeepWorkFiles bool
	TailPad       float64
	Settings      Settings
	Captions      CaptionStyle
}

// OptionsFromConfig maps the render section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	r := cfg.Render
	captions := DefaultCaptionStyle()
	captions.FontSize = r.FontSize
	captions.Width = r.Width
	captions.Height = r.Height
	captions.Fade = time.Duration(r.CaptionFadeSeconds * float64(time.Second))
	return Options{
		WorkDir:       cfg.Paths.WorkDir,
		KeepWorkFiles: r.KeepWorkFiles,
		TailPad:       r.TailPadSeconds,
		Captions:      captions,
		Settings: Settings{
			Width:               r.Width,
			Height:              r.Height,
			FPS:                 r.FPS,
			Preset:              r.Preset,
			VideoBitrate:        r.VideoBitrate,
			ZoomFactor:          r.ZoomFactor,
			FontPath:            r.FontPath,
			PlaceholderFontSize: r.PlaceholderFont,
		},
	}
}

// Renderer turns stored transcripts and narration into finished videos.
type Renderer struct {
	stores   storage.Resolver
	images   ImageGenerator
	composer Composer
	probe    ProbeFunc
	metrics  *metrics.Registry
	opts     Options
	logger   *slog.Logger
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithProbe verifies every rendered file before upload.
func WithProbe(p ProbeFunc) Option {
	return func(r *Renderer) { r.probe = p }
}

// WithMetrics counts generated and placeholder images.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Renderer) { r.metrics = m }
}

// New constructs a renderer.
func New(stores storage.Resolver, images ImageGenerator, composer Composer, opts Options, logger *slog.Logger, options ...Option) *Renderer {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Renderer{
		stores:   stores,
		images:   images,
		composer: composer,
		opts:     opts,
		logger:   logger,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Render downloads the job's inputs, generates and uploads one image per clip,
// composes the video and uploads it to videos/{id}.mp4. A clip whose image
// cannot be generated or stored becomes a placeholder instead of failing the
// render.
func (r *Renderer) Render(ctx context.Context, job Job) (Output, error) {
	if err := job.Validate(); err != nil {
		return Output{}, err
	}
	ctx = services.WithVideoID(ctx, job.VideoID)
	logger := logging.WithContext(ctx, r.logger)
	store := r.stores.ForBucket(job.Bucket)

	var bundle transcript.Bundle
	if err := storage.GetJSON(ctx, store, job.TranscriptKey, &bundle); err != nil {
		return Output{}, fmt.Errorf("download transcript: %w", err)
	}
	if len(bundle.Clips) == 0 || bundle.Duration <= 0 {
		return Output{}, services.Wrap(services.ErrValidation, "render", "read transcript",
			fmt.Sprintf("transcript has %d clips and duration %.2fs", len(bundle.Clips), bundle.Duration), nil)
	}
	audio, err := store.Get(ctx, job.AudioKey)
	if err != nil {
		return Output{}, fmt.Errorf("download audio: %w", err)
	}
	logger.Info("render inputs downloaded",
		logging.Int("clip_count", len(bundle.Clips)),
		logging.Float64("duration_seconds", bundle.Duration),
		logging.Int("audio_bytes", len(audio)),
	)

	workDir := filepath.Join(r.opts.WorkDir, job.VideoID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Output{}, services.Wrap(services.ErrConfiguration, "render", "create work dir", workDir, err)
	}
	if !r.opts.KeepWorkFiles {
		defer func() {
			if err := os.RemoveAll(workDir); err != nil {
				logger.Warn("work dir cleanup failed", logging.Error(err), logging.String("path", workDir))
			}
		}()
	}
	audioPath := filepath.Join(workDir, "narration.mp3")
	if err := os.WriteFile(audioPath, audio, 0o644); err != nil {
		return Output{}, services.Wrap(services.ErrConfiguration, "render", "write audio", audioPath, err)
	}

	timeline := PlanTimeline(bundle, r.opts.TailPad)
	comp := Composition{
		AudioPath:  audioPath,
		OutputPath: filepath.Join(workDir, "final.mp4"),
		Duration:   timeline.Duration,
	}
	var captionWords []alignment.WordTimestamp
	placeholders := 0
	for i, seg := range timeline.Segments {
		layer, ok, err := r.clipLayer(ctx, logger, store, job.VideoID, workDir, i, seg)
		if err != nil {
			return Output{}, err
		}
		if ok {
			captionWords = append(captionWords, seg.Words...)
		} else {
			placeholders++
		}
		comp.Layers = append(comp.Layers, layer)
	}

	if len(captionWords) > 0 {
		comp.CaptionsPath = filepath.Join(workDir, "captions.ass")
		if err := os.WriteFile(comp.CaptionsPath, []byte(Captions(captionWords, r.opts.Captions)), 0o644); err != nil {
			return Output{}, services.Wrap(services.ErrConfiguration, "render", "write captions", comp.CaptionsPath, err)
		}
	}

	start := time.Now()
	if err := r.composer.Compose(ctx, comp); err != nil {
		return Output{}, err
	}
	logger.Info("video composed",
		logging.Duration("elapsed", time.Since(start)),
		logging.Int("placeholders", placeholders),
		logging.Int("caption_words", len(captionWords)),
	)
	if r.probe != nil {
		report, err := r.probe(ctx, comp.OutputPath)
		if err == nil {
			err = report.Check(ffprobe.Expectation{
				Width:    r.opts.Settings.Width,
				Height:   r.opts.Settings.Height,
				Duration: timeline.Duration,
			})
		}
		if err != nil {
			return Output{}, services.Wrap(services.ErrExternalTool, "render", "verify video", comp.OutputPath, err)
		}
	}

	videoKey := transcript.VideoKey(job.VideoID)
	if err := store.PutFile(ctx, videoKey, comp.OutputPath, storage.ContentTypeMP4); err != nil {
		return Output{}, fmt.Errorf("upload video: %w", err)
	}
	logger.Info("video uploaded",
		logging.String("video_key", videoKey),
		logging.String(logging.FieldEventType, "video_uploaded"),
	)
	return Output{
		VideoID:      job.VideoID,
		VideoKey:     videoKey,
		Duration:     bundle.Duration,
		ClipCount:    bundle.ClipCount,
		Placeholders: placeholders,
	}, nil
}

// clipLayer generates, saves and uploads the clip image. ok is false when the
// clip fell back to a placeholder. Only cancellation is returned as an error.
func (r *Renderer) clipLayer(ctx context.Context, logger *slog.Logger, store storage.Store, videoID, workDir string, i int, seg Segment) (Layer, bool, error) {
	logger = logger.With(logging.Int("clip_index", i))
	imagePath := filepath.Join(workDir, fmt.Sprintf("image_%d.png", i))
	err := r.generateImage(ctx, store, videoID, imagePath, i, seg)
	if err == nil {
		r.metrics.ImageRendered("generated")
		logger.Debug("clip image ready",
			logging.Float64("start", seg.Start),
			logging.Float64("span", seg.ImageSpan()),
		)
		return Layer{Start: seg.Start, Duration: seg.ImageSpan(), ImagePath: imagePath}, true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Layer{}, false, ctxErr
	}
	logger.Warn("clip image unavailable; using placeholder",
		logging.Error(err),
		logging.String(logging.FieldEventType, "clip_placeholder"),
		logging.String(logging.FieldImpact, "clip shows its narration text on a grey background"),
	)
	r.metrics.ImageRendered("placeholder")
	textPath := filepath.Join(workDir, fmt.Sprintf("placeholder_%d.txt", i))
	if err := os.WriteFile(textPath, []byte(seg.Text), 0o644); err != nil {
		return Layer{}, false, services.Wrap(services.ErrConfiguration, "render", "write placeholder text", textPath, err)
	}
	return Layer{Start: seg.Start, Duration: seg.PlaceholderSpan(), TextFile: textPath}, false, nil
}

func (r *Renderer) generateImage(ctx context.Context, store storage.Store, videoID, path string, i int, seg Segment) error {
	if r.images == nil {
		return errors.New("image generator not configured")
	}
	prompt := seg.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = seg.Text
	}
	data, err := r.images.Generate(ctx, prompt, seg.Negative)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	return store.PutFile(ctx, transcript.ImageKey(videoID, i), path, storage.ContentTypePNG)
}
