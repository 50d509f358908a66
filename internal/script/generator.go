package script

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"

	"storyreel/internal/logging"
	"storyreel/internal/services"
	"storyreel/internal/services/llm"
	"storyreel/internal/services/storybank"
)

// Completer issues JSON-mode chat completions.
type Completer interface {
	CompleteJSON(ctx context.Context, req llm.Request) (string, error)
}

// InspirationSource supplies example stories for the script prompt.
type InspirationSource interface {
	RandomStory(ctx context.Context) (storybank.Story, error)
}

// Sampling holds the per-call sampling parameters.
type Sampling struct {
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// DefaultScriptSampling favours varied, surprising stories.
func DefaultScriptSampling() Sampling {
	return Sampling{MaxTokens: 1200, Temperature: 0.85, TopP: 0.95, FrequencyPenalty: 0.4, PresencePenalty: 0.6}
}

// DefaultClipSampling favours faithful, consistent image prompts.
func DefaultClipSampling() Sampling {
	return Sampling{MaxTokens: 1500, Temperature: 0.4, TopP: 0.8, FrequencyPenalty: 0.1, PresencePenalty: 0.1}
}

// Generator writes scripts and clip prompts.
type Generator struct {
	llm         Completer
	inspiration InspirationSource
	logger      *slog.Logger
	rand        *rand.Rand

	ScriptSampling Sampling
	ClipSampling   Sampling
	// FixedDurationSeconds pins the story length when positive.
	FixedDurationSeconds int
}

// NewGenerator constructs a generator. inspiration and r may be nil.
func NewGenerator(completer Completer, inspiration InspirationSource, logger *slog.Logger, r *rand.Rand) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		llm:            completer,
		inspiration:    inspiration,
		logger:         logger,
		rand:           r,
		ScriptSampling: DefaultScriptSampling(),
		ClipSampling:   DefaultClipSampling(),
	}
}

// Plan picks the plan for the next story.
func (g *Generator) Plan() Plan {
	if g.FixedDurationSeconds > 0 {
		return PlanFor(g.FixedDurationSeconds)
	}
	return NewPlan(g.rand)
}

// Generate writes a new script and returns it cleaned.
func (g *Generator) Generate(ctx context.Context, plan Plan) (Script, error) {
	logger := logging.WithContext(ctx, g.logger)
	var example *storybank.Story
	if g.inspiration != nil {
		story, err := g.inspiration.RandomStory(ctx)
		if err != nil {
			logger.Warn("inspiration story unavailable; prompting without example",
				logging.Error(err),
				logging.String(logging.FieldEventType, "inspiration_unavailable"),
				logging.String(logging.FieldErrorHint, "check script.inspiration_url reachability"),
			)
		} else {
			example = &story
			logger.Info("inspiration story fetched", logging.String("inspiration_title", story.Title))
		}
	}

	content, err := g.llm.CompleteJSON(ctx, g.ScriptSampling.request(ScriptSystemPrompt(plan, example), ScriptUserPrompt(plan)))
	if err != nil {
		return Script{}, services.Wrap(services.ErrExternalTool, "script", "generate", "script completion failed", err)
	}
	parsed, err := DecodeJSON[Script](content)
	if err != nil {
		return Script{}, services.Wrap(services.ErrValidation, "script", "parse", "script response is not valid JSON", err)
	}
	cleaned := parsed.Clean()
	if len(cleaned.ClipTexts) == 0 || strings.TrimSpace(cleaned.FullText()) == "" {
		return Script{}, services.Wrap(services.ErrValidation, "script", "parse", "script has no clip texts", nil)
	}
	if cleaned.ClipCount() != plan.ClipCount {
		logger.Warn("script clip count differs from plan",
			logging.Int("planned_clips", plan.ClipCount),
			logging.Int("clip_count", cleaned.ClipCount()),
			logging.String(logging.FieldEventType, "clip_count_mismatch"),
		)
	}
	logger.Info("script generated",
		logging.String("title", cleaned.Title),
		logging.Int("clip_count", cleaned.ClipCount()),
		logging.Int("word_count", len(strings.Fields(cleaned.FullText()))),
		logging.Int("story_seconds", plan.DurationSeconds),
	)
	return cleaned, nil
}

// ImagePrompt derives the image prompt pair for clip idx. It never fails: on
// any error the clip narration becomes the prompt and fallback is true.
func (g *Generator) ImagePrompt(ctx context.Context, s Script, idx int) (prompt ClipPrompt, fallback bool) {
	if idx < 0 || idx >= len(s.ClipTexts) {
		return ClipPrompt{NegativePrompt: FallbackNegativePrompt}, true
	}
	text := s.ClipTexts[idx]
	logger := logging.WithContext(ctx, g.logger).With(logging.Int("clip_index", idx))
	fallbackPrompt := ClipPrompt{ImagePrompt: text, NegativePrompt: FallbackNegativePrompt}

	content, err := g.llm.CompleteJSON(ctx, g.ClipSampling.request(ClipSystemPrompt(s), ClipUserPrompt(text, idx, len(s.ClipTexts))))
	if err != nil {
		logger.Warn("clip prompt completion failed; using narration as prompt",
			logging.Error(err),
			logging.String(logging.FieldEventType, "clip_prompt_fallback"),
		)
		return fallbackPrompt, true
	}
	parsed, err := DecodeJSON[ClipPrompt](content)
	if err != nil || strings.TrimSpace(parsed.ImagePrompt) == "" {
		if err == nil {
			err = errors.New("empty image_prompt")
		}
		logger.Warn("clip prompt unparseable; using narration as prompt",
			logging.Error(err),
			logging.String(logging.FieldEventType, "clip_prompt_fallback"),
		)
		return fallbackPrompt, true
	}
	parsed.ImagePrompt = strings.TrimSpace(parsed.ImagePrompt)
	parsed.NegativePrompt = strings.TrimSpace(parsed.NegativePrompt)
	if parsed.NegativePrompt == "" {
		parsed.NegativePrompt = FallbackNegativePrompt
	}
	return parsed, false
}

// DecodeJSON decodes model output into T, tolerating code fences and raw
// whitespace inside string literals.
func DecodeJSON[T any](content string) (T, error) {
	var out T
	if err := llm.DecodeLLMJSON(content, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (s Sampling) request(system, user string) llm.Request {
	return llm.Request{
		System:           system,
		User:             user,
		MaxTokens:        s.MaxTokens,
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		FrequencyPenalty: s.FrequencyPenalty,
		PresencePenalty:  s.PresencePenalty,
	}
}
