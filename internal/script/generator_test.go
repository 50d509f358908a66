package script_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"storyreel/internal/services"
	"storyreel/internal/services/llm"
	"storyreel/internal/services/storybank"
	"storyreel/internal/script"
)

type fakeCompleter struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []llm.Request
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.requests)
	f.requests = append(f.requests, req)
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if err != nil {
		return "", err
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return "", errors.New("no response queued")
}

type fakeInspiration struct {
	story storybank.Story
	err   error
}

func (f fakeInspiration) RandomStory(context.Context) (storybank.Story, error) {
	return f.story, f.err
}

func TestGenerateCleansScriptAndUsesInspiration(t *testing.T) {
	completer := &fakeCompleter{responses: []string{"```json\n" +
		`{"title":"*Lost* Key","description":"A key.","hashtags":["#Key"],"clip_texts":["One *two*.","Three four."]}` +
		"\n```"}}
	inspiration := fakeInspiration{story: storybank.Story{Title: "Fox", Story: "A fox ran.", Moral: "Run."}}
	gen := script.NewGenerator(completer, inspiration, nil, nil)

	got, err := gen.Generate(context.Background(), script.PlanFor(8))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.Title != "Lost Key" || got.ClipTexts[0] != "One two." {
		t.Fatalf("expected cleaned script, got %+v", got)
	}
	if len(completer.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(completer.requests))
	}
	req := completer.requests[0]
	if !strings.Contains(req.System, "Title: Fox") {
		t.Fatal("expected inspiration in system prompt")
	}
	if req.Temperature != 0.85 || req.MaxTokens != 1200 {
		t.Fatalf("unexpected sampling %+v", req)
	}
}

func TestGenerateContinuesWhenInspirationFails(t *testing.T) {
	completer := &fakeCompleter{responses: []string{`{"title":"T","description":"D","hashtags":[],"clip_texts":["a b"]}`}}
	gen := script.NewGenerator(completer, fakeInspiration{err: errors.New("down")}, nil, nil)
	if _, err := gen.Generate(context.Background(), script.PlanFor(4)); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(completer.requests[0].System, "INSPIRATION") {
		t.Fatal("expected prompt without inspiration")
	}
}

func TestGenerateRejectsUnparseableOutput(t *testing.T) {
	completer := &fakeCompleter{responses: []string{"not json at all"}}
	gen := script.NewGenerator(completer, nil, nil, nil)
	_, err := gen.Generate(context.Background(), script.PlanFor(8))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGenerateRejectsEmptyClips(t *testing.T) {
	completer := &fakeCompleter{responses: []string{`{"title":"T","description":"D","hashtags":[],"clip_texts":["***"]}`}}
	gen := script.NewGenerator(completer, nil, nil, nil)
	_, err := gen.Generate(context.Background(), script.PlanFor(4))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGenerateWrapsCompletionFailure(t *testing.T) {
	completer := &fakeCompleter{errs: []error{errors.New("boom")}}
	gen := script.NewGenerator(completer, nil, nil, nil)
	_, err := gen.Generate(context.Background(), script.PlanFor(4))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestImagePromptParsesResponse(t *testing.T) {
	completer := &fakeCompleter{responses: []string{`{"image_prompt":" a castle at dusk ","image_negative_prompt":"blur"}`}}
	gen := script.NewGenerator(completer, nil, nil, nil)
	s := script.Script{Title: "T", ClipTexts: []string{"The castle waits."}}

	prompt, fallback := gen.ImagePrompt(context.Background(), s, 0)
	if fallback {
		t.Fatal("did not expect fallback")
	}
	if prompt.ImagePrompt != "a castle at dusk" || prompt.NegativePrompt != "blur" {
		t.Fatalf("unexpected prompt %+v", prompt)
	}
	if completer.requests[0].Temperature != 0.4 {
		t.Fatalf("expected clip sampling, got %+v", completer.requests[0])
	}
}

func TestImagePromptFallsBackToNarration(t *testing.T) {
	tests := []struct {
		name      string
		completer *fakeCompleter
	}{
		{"error", &fakeCompleter{errs: []error{errors.New("timeout")}}},
		{"garbage", &fakeCompleter{responses: []string{"nope"}}},
		{"empty", &fakeCompleter{responses: []string{`{"image_prompt":"  "}`}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := script.NewGenerator(tt.completer, nil, nil, nil)
			s := script.Script{ClipTexts: []string{"first", "second scene"}}
			prompt, fallback := gen.ImagePrompt(context.Background(), s, 1)
			if !fallback {
				t.Fatal("expected fallback")
			}
			if prompt.ImagePrompt != "second scene" || prompt.NegativePrompt != script.FallbackNegativePrompt {
				t.Fatalf("unexpected fallback prompt %+v", prompt)
			}
		})
	}
}

func TestGeneratorPlanHonoursFixedDuration(t *testing.T) {
	gen := script.NewGenerator(&fakeCompleter{}, nil, nil, nil)
	gen.FixedDurationSeconds = 48
	if plan := gen.Plan(); plan.ClipCount != 12 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}
