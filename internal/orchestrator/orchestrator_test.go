package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storyreel/internal/alignment"
	"storyreel/internal/dispatch"
	"storyreel/internal/notifications"
	"storyreel/internal/orchestrator"
	"storyreel/internal/script"
	"storyreel/internal/services"
	"storyreel/internal/services/tts"
	"storyreel/internal/testsupport"
	"storyreel/internal/transcript"
)

type fakeWriter struct {
	script      script.Script
	err         error
	failPrompts map[int]bool
	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *fakeWriter) Plan() script.Plan { return script.PlanFor(8) }

func (f *fakeWriter) Generate(context.Context, script.Plan) (script.Script, error) {
	return f.script, f.err
}

func (f *fakeWriter) ImagePrompt(_ context.Context, s script.Script, idx int) (script.ClipPrompt, bool) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	if f.failPrompts[idx] {
		return script.ClipPrompt{ImagePrompt: s.ClipTexts[idx], NegativePrompt: script.FallbackNegativePrompt}, true
	}
	return script.ClipPrompt{ImagePrompt: fmt.Sprintf("scene %d", idx), NegativePrompt: "blur"}, false
}

type fakeVoice struct {
	err  error
	text string
	// spoken rewrites the text before timing it, as a voice that drifts from
	// the script would.
	spoken func(string) string
}

func (f *fakeVoice) Synthesize(_ context.Context, text string) (tts.Result, error) {
	f.text = text
	if f.err != nil {
		return tts.Result{}, f.err
	}
	said := text
	if f.spoken != nil {
		said = f.spoken(text)
	}
	return tts.Result{Audio: []byte("mp3"), Timing: timingFor(said), VoiceID: "voice-1"}, nil
}

// timingFor gives every character 0.1s.
func timingFor(text string) alignment.CharacterTiming {
	var timing alignment.CharacterTiming
	for i, r := range []rune(text) {
		timing.Characters = append(timing.Characters, string(r))
		timing.StartTimes = append(timing.StartTimes, float64(i)*0.1)
		timing.EndTimes = append(timing.EndTimes, float64(i+1)*0.1)
	}
	return timing
}

type fakeTrigger struct {
	mu     sync.Mutex
	calls  []dispatch.Request
	result *dispatch.Result
	err    error
}

func (f *fakeTrigger) Trigger(_ context.Context, req dispatch.Request) (*dispatch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.result, f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func testScript() script.Script {
	return script.Script{
		Title:       "The Lighthouse",
		Description: "A keeper waits",
		Hashtags:    []string{"story"},
		ClipTexts:   []string{"the keeper lit the lamp", "a ship appeared at dawn"},
	}
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
}

func newOrchestrator(w *fakeWriter, v *fakeVoice, store *testsupport.MemoryStore, trig orchestrator.Trigger, n notifications.Service) *orchestrator.Orchestrator {
	return orchestrator.New(w, v, store, trig, nil,
		orchestrator.WithNotifier(n),
		orchestrator.WithClock(fixedClock),
		orchestrator.WithRand(rand.New(rand.NewPCG(1, 2))),
		orchestrator.WithConcurrency(2),
	)
}

func TestRunStoresArtifactsAndTriggers(t *testing.T) {
	store := testsupport.NewMemoryStore("bucket")
	writer := &fakeWriter{script: testScript(), failPrompts: map[int]bool{1: true}}
	voice := &fakeVoice{}
	trig := &fakeTrigger{result: &dispatch.Result{StatusCode: 202, Body: map[string]any{"status": "processing"}}}
	notifier := &recordingNotifier{}

	res := newOrchestrator(writer, voice, store, trig, notifier).Run(context.Background())
	if !res.Success || res.StatusCode != 200 {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.HasPrefix(res.VideoID, "04_03_2026_05_06_07_oguzhancttnky") {
		t.Fatalf("unexpected video id %q", res.VideoID)
	}
	if voice.text != "the keeper lit the lamp a ship appeared at dawn" {
		t.Fatalf("unexpected synthesized text %q", voice.text)
	}
	if !res.Triggered || res.Worker["status"] != "processing" {
		t.Fatalf("expected worker result, got %+v", res)
	}
	if len(trig.calls) != 1 || trig.calls[0].TranscriptKey != transcript.TranscriptKey(res.VideoID) || trig.calls[0].StorageBucket != "bucket" {
		t.Fatalf("unexpected trigger calls %+v", trig.calls)
	}

	audio, ok := store.Object(transcript.AudioKey(res.VideoID))
	if !ok || audio.ContentType != "audio/mpeg" || string(audio.Body) != "mp3" {
		t.Fatalf("unexpected audio object %+v ok=%v", audio, ok)
	}

	obj, ok := store.Object(transcript.TranscriptKey(res.VideoID))
	if !ok || obj.ContentType != "application/json" {
		t.Fatalf("transcript missing or wrong type: %+v", obj)
	}
	var bundle transcript.Bundle
	if err := json.Unmarshal(obj.Body, &bundle); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if bundle.ClipCount != 2 || bundle.WordCount != 10 {
		t.Fatalf("unexpected bundle counts %+v", bundle)
	}
	first := bundle.Clips[0]
	if first.ImagePrompt != "scene 0" || first.StartTime == nil || *first.StartTime != 0 {
		t.Fatalf("unexpected first clip %+v", first)
	}
	second := bundle.Clips[1]
	if second.ImagePrompt != "a ship appeared at dawn" || second.NegativePrompt != script.FallbackNegativePrompt {
		t.Fatalf("expected fallback prompt on second clip, got %+v", second)
	}
	if second.StartTime == nil || *second.StartTime <= *first.EndTime-0.001 {
		t.Fatalf("expected second clip after first, got %+v", second)
	}

	var meta transcript.Metadata
	metaObj, _ := store.Object(transcript.MetadataKey(res.VideoID))
	if err := json.Unmarshal(metaObj.Body, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Status != transcript.StatusProcessing || meta.Title != "The Lighthouse" || meta.ClipCount != 2 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventStoryGenerated {
		t.Fatalf("unexpected events %v", notifier.events)
	}
}

func TestRunBoundsPromptConcurrency(t *testing.T) {
	s := testScript()
	s.ClipTexts = []string{"one", "two", "three", "four", "five", "six"}
	writer := &fakeWriter{script: s}
	res := newOrchestrator(writer, &fakeVoice{}, testsupport.NewMemoryStore("b"), nil, nil).Run(context.Background())
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if got := writer.maxInflight.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent prompts, saw %d", got)
	}
	if res.Triggered {
		t.Fatal("expected no trigger without dispatcher")
	}
}

func TestRunReportsUpstreamFailure(t *testing.T) {
	store := testsupport.NewMemoryStore("bucket")
	voiceErr := services.Wrap(services.ErrExternalTool, "tts", "synthesize", "status 401", nil)
	notifier := &recordingNotifier{}
	trig := &fakeTrigger{}

	res := newOrchestrator(&fakeWriter{script: testScript()}, &fakeVoice{err: voiceErr}, store, trig, notifier).Run(context.Background())
	if res.Success || res.StatusCode != 500 {
		t.Fatalf("expected failure result, got %+v", res)
	}
	if !strings.HasPrefix(res.Error, "Error occurred: ") || res.ExceptionType != "ExternalToolError" {
		t.Fatalf("unexpected failure fields %+v", res)
	}
	if len(store.Keys()) != 0 {
		t.Fatalf("expected nothing stored, got %v", store.Keys())
	}
	if len(trig.calls) != 0 {
		t.Fatal("expected no trigger after failure")
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventGenerationFailed {
		t.Fatalf("unexpected events %v", notifier.events)
	}
}

func TestRunReportsStorageFailure(t *testing.T) {
	store := testsupport.NewMemoryStore("bucket")
	writer := &fakeWriter{script: testScript()}
	o := newOrchestrator(writer, &fakeVoice{}, store, nil, nil)
	id := transcript.NewVideoID(fixedClock(), rand.New(rand.NewPCG(1, 2)))
	store.FailPut[transcript.AudioKey(id)] = errors.New("access denied")

	res := o.Run(context.Background())
	if res.Success || res.StatusCode != 500 || !strings.Contains(res.Error, "access denied") {
		t.Fatalf("expected storage failure, got %+v", res)
	}
}

func TestRunNilWorkerResultIsReported(t *testing.T) {
	store := testsupport.NewMemoryStore("bucket")
	res := newOrchestrator(&fakeWriter{script: testScript()}, &fakeVoice{}, store, &fakeTrigger{}, nil).Run(context.Background())
	if !res.Success || res.Triggered || res.Worker != nil {
		t.Fatalf("expected untriggered success, got %+v", res)
	}
	if _, ok := store.Object(transcript.MetadataKey(res.VideoID)); !ok {
		t.Fatal("expected metadata to remain stored")
	}
}

func TestRunTriggerErrorBecomesFailure(t *testing.T) {
	trig := &fakeTrigger{err: context.Canceled}
	res := newOrchestrator(&fakeWriter{script: testScript()}, &fakeVoice{}, testsupport.NewMemoryStore("b"), trig, nil).Run(context.Background())
	if res.Success || res.ExceptionType != "Cancelled" {
		t.Fatalf("expected cancelled failure, got %+v", res)
	}
}

type panickingWriter struct{ fakeWriter }

func (p *panickingWriter) Generate(context.Context, script.Plan) (script.Script, error) {
	panic("boom")
}

func TestRunRecoversPanics(t *testing.T) {
	res := orchestrator.New(&panickingWriter{}, &fakeVoice{}, testsupport.NewMemoryStore("b"), nil, nil).Run(context.Background())
	if res.Success || res.StatusCode != 500 || !strings.Contains(res.Error, "boom") {
		t.Fatalf("expected recovered failure, got %+v", res)
	}
}

func TestRedispatch(t *testing.T) {
	store := testsupport.NewMemoryStore("bucket")
	trig := &fakeTrigger{result: &dispatch.Result{StatusCode: 202}}
	o := newOrchestrator(&fakeWriter{script: testScript()}, &fakeVoice{}, store, trig, nil)

	if res := o.Redispatch(context.Background(), "missing"); res.Success || res.ExceptionType != "NotFoundError" {
		t.Fatalf("expected not found, got %+v", res)
	}
	if res := o.Redispatch(context.Background(), "../etc"); res.Success || res.ExceptionType != "ValidationError" {
		t.Fatalf("expected validation failure, got %+v", res)
	}

	first := o.Run(context.Background())
	res := o.Redispatch(context.Background(), first.VideoID)
	if !res.Success || !res.Triggered || res.Title != "The Lighthouse" {
		t.Fatalf("unexpected redispatch result %+v", res)
	}
	if len(trig.calls) != 2 {
		t.Fatalf("expected two trigger calls, got %d", len(trig.calls))
	}
}

func TestRunEightClipsWithSpeechDrift(t *testing.T) {
	s := testScript()
	s.ClipTexts = []string{
		"  the keeper lit the lamp",
		"fog rolled over the rocks",
		"a bell rang far away",
		"he climbed the long stair",
		"the storm broke at midnight,",
		"waves struck the glass",
		"a ship appeared at dawn",
		"the keeper finally slept  ",
	}
	store := testsupport.NewMemoryStore("bucket")
	voice := &fakeVoice{spoken: func(text string) string {
		return strings.Replace(text, "midnight,", "midnight", 1)
	}}

	res := newOrchestrator(&fakeWriter{script: s}, voice, store, nil, nil).Run(context.Background())
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	wantText := strings.TrimSpace(s.FullText())
	if voice.text != wantText {
		t.Fatalf("synthesized %q, want %q", voice.text, wantText)
	}

	obj, ok := store.Object(transcript.TranscriptKey(res.VideoID))
	if !ok {
		t.Fatal("transcript missing")
	}
	var bundle transcript.Bundle
	if err := json.Unmarshal(obj.Body, &bundle); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if bundle.ClipCount != len(s.ClipTexts) || len(bundle.Clips) != len(s.ClipTexts) {
		t.Fatalf("clip count %d (%d clips), want %d", bundle.ClipCount, len(bundle.Clips), len(s.ClipTexts))
	}
	if bundle.Script != wantText || bundle.WordCount != len(strings.Fields(wantText)) {
		t.Fatalf("unexpected script fields %q words=%d", bundle.Script, bundle.WordCount)
	}
	if res.Resolved != 7 {
		t.Fatalf("expected 7 resolved clips, got %d", res.Resolved)
	}

	for i, clip := range bundle.Clips {
		if clip.Index != i {
			t.Fatalf("clip %d has index %d", i, clip.Index)
		}
		want := 0.0
		if clip.StartTime != nil && clip.EndTime != nil {
			want = *clip.EndTime - *clip.StartTime
		}
		if clip.Duration != want {
			t.Fatalf("clip %d duration %v, want %v", i, clip.Duration, want)
		}
		if i == 4 {
			if clip.StartTime != nil || clip.EndTime != nil || clip.WordTimestamps != nil || clip.Duration != 0 {
				t.Fatalf("expected drifted clip unresolved, got %+v", clip)
			}
			continue
		}
		if clip.StartTime == nil || clip.EndTime == nil || clip.Duration <= 0 {
			t.Fatalf("expected clip %d resolved, got %+v", i, clip)
		}
	}

	var meta transcript.Metadata
	metaObj, _ := store.Object(transcript.MetadataKey(res.VideoID))
	if err := json.Unmarshal(metaObj.Body, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Script != wantText || meta.ClipCount != len(s.ClipTexts) {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}
