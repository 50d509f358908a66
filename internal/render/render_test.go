package render_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storyreel/internal/alignment"
	"storyreel/internal/config"
	"storyreel/internal/media/ffprobe"
	"storyreel/internal/render"
	"storyreel/internal/services"
	"storyreel/internal/storage"
	"storyreel/internal/testsupport"
	"storyreel/internal/transcript"
)

func ptr(v float64) *float64 { return &v }

func sampleBundle() transcript.Bundle {
	return transcript.Bundle{
		Script:    "the keeper lit the lamp a ship appeared",
		Duration:  4,
		WordCount: 8,
		ClipCount: 3,
		Clips: []transcript.ClipAlignment{
			{
				Index: 0, Text: "the keeper lit the lamp", StartTime: ptr(0), EndTime: ptr(2.5), Duration: 2.5,
				ImagePrompt: "a lighthouse keeper", NegativePrompt: "blur",
				WordTimestamps: []alignment.WordTimestamp{{Word: "the", Start: 0, End: 0.3}, {Word: "keeper", Start: 0.4, End: 1.2}},
			},
			{Index: 1, Text: "lost words", Duration: 0},
			{
				Index: 2, Text: "a ship appeared", StartTime: ptr(2.6), EndTime: ptr(4), Duration: 1.4,
				ImagePrompt: "a ship at dawn",
				WordTimestamps: []alignment.WordTimestamp{{Word: "ship", Start: 2.8, End: 3.5}},
			},
		},
	}
}

func TestPlanTimeline(t *testing.T) {
	timeline := render.PlanTimeline(sampleBundle(), 2)
	if timeline.Duration != 4 || len(timeline.Segments) != 3 {
		t.Fatalf("unexpected timeline %+v", timeline)
	}
	first, lost, last := timeline.Segments[0], timeline.Segments[1], timeline.Segments[2]
	if first.Start != 0 || first.ImageSpan() != 2.5 || first.Tail != 0 {
		t.Fatalf("unexpected first segment %+v", first)
	}
	if lost.Resolved || lost.Start != 0 || lost.ImageSpan() != 0 {
		t.Fatalf("expected unresolved zero-length segment, got %+v", lost)
	}
	if last.Start != 2.6 || math.Abs(last.ImageSpan()-3.4) > 1e-9 || last.PlaceholderSpan() != 1.4 {
		t.Fatalf("expected tail only on last image span, got %+v", last)
	}
}

func TestPlanTimelineUnresolvedLastClipGetsOnlyTail(t *testing.T) {
	bundle := sampleBundle()
	bundle.Clips = append(bundle.Clips[:2], transcript.ClipAlignment{Index: 2, Text: "drifted ending"})
	timeline := render.PlanTimeline(bundle, 2)
	last := timeline.Segments[2]
	if last.Resolved || last.Start != 0 || last.Duration != 0 {
		t.Fatalf("expected unresolved last segment at zero, got %+v", last)
	}
	if last.ImageSpan() != 2 || last.PlaceholderSpan() != 0 {
		t.Fatalf("expected only the tail pad on screen, got image %v placeholder %v", last.ImageSpan(), last.PlaceholderSpan())
	}
	if timeline.Duration != 4 {
		t.Fatalf("video length should follow the narration, got %v", timeline.Duration)
	}
}

func TestPlanTimelineEmptyBundle(t *testing.T) {
	timeline := render.PlanTimeline(transcript.Bundle{}, 2)
	if len(timeline.Segments) != 0 || timeline.Duration != 0 {
		t.Fatalf("expected empty timeline, got %+v", timeline)
	}
}

func TestCaptions(t *testing.T) {
	words := []alignment.WordTimestamp{
		{Word: "hello", Start: 1.2, End: 1.75},
		{Word: "{bad}\\", Start: 2, End: 2.5},
		{Word: "skip", Start: 3, End: 3},
	}
	ass := render.Captions(words, render.DefaultCaptionStyle())
	for _, want := range []string{
		"PlayResX: 1080",
		"Style: Caption,DejaVu Sans,60,&H00FFFFFF",
		`Dialogue: 0,0:00:01.20,0:00:01.75,Caption,,0,0,0,,{\an5\pos(540,960)\fad(100,0)}hello`,
		`{\an5\pos(540,960)\fad(100,0)}(bad)\\`,
	} {
		if !strings.Contains(ass, want) {
			t.Fatalf("expected %q in captions:\n%s", want, ass)
		}
	}
	if strings.Contains(ass, "skip") {
		t.Fatal("expected zero-length word to be dropped")
	}
}

func testSettings() render.Settings {
	return render.Settings{
		Width: 1080, Height: 1080, FPS: 30, Preset: "medium", VideoBitrate: "2000k",
		ZoomFactor: 1.05, FontPath: "/fonts/DejaVuSans-Bold.ttf", PlaceholderFontSize: 24,
	}
}

func TestComposeArgs(t *testing.T) {
	comp := render.Composition{
		AudioPath:    "/work/narration.mp3",
		CaptionsPath: "/work/captions.ass",
		OutputPath:   "/work/final.mp4",
		Duration:     4,
		Layers: []render.Layer{
			{Start: 0, Duration: 2.5, ImagePath: "/work/image_0.png"},
			{Start: 0, Duration: 0, ImagePath: "/work/image_1.png"},
			{Start: 2.6, Duration: 1.4, TextFile: "/work/placeholder_2.txt"},
		},
	}
	args := render.ComposeArgs(comp, testSettings())
	joined := strings.Join(args, " ")

	if strings.Contains(joined, "image_1.png") {
		t.Fatal("expected zero-length layer to be skipped")
	}
	var graph string
	for i, arg := range args {
		if arg == "-filter_complex" {
			graph = args[i+1]
		}
	}
	for _, want := range []string{
		"color=c=black:s=1080x1080:r=30:d=4.000[base]",
		"[1:v]scale=1080:1080,setsar=1,zoompan=z='1+0.05*on/75'",
		"d=75:s=1080x1080:fps=30,setpts=PTS-STARTPTS+0.000/TB[l0]",
		"[base][l0]overlay=eof_action=pass:enable='between(t,0.000,2.500)'[v0]",
		"color=c=0x323232:s=1080x1080:r=30:d=1.400,drawtext=fontfile=/fonts/DejaVuSans-Bold.ttf:textfile=/work/placeholder_2.txt:fontsize=24",
		"[v0][l2]overlay=eof_action=pass:enable='between(t,2.600,4.000)'[v2]",
		"[v2]subtitles=filename=/work/captions.ass:fontsdir=/fonts[captioned]",
		"[captioned]format=yuv420p[out]",
	} {
		if !strings.Contains(graph, want) {
			t.Fatalf("expected %q in filter graph:\n%s", want, graph)
		}
	}
	for _, want := range []string{"-c:v libx264", "-preset medium", "-b:v 2000k", "-r 30", "-c:a aac", "-t 4.000", "-map 0:a"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in args: %s", want, joined)
		}
	}
	if args[len(args)-1] != "/work/final.mp4" {
		t.Fatalf("expected output path last, got %q", args[len(args)-1])
	}
}

func TestComposeArgsEscapesFilterPaths(t *testing.T) {
	comp := render.Composition{AudioPath: "a.mp3", CaptionsPath: "/tmp/we:ird,dir/captions.ass", OutputPath: "o.mp4", Duration: 1}
	args := render.ComposeArgs(comp, testSettings())
	graph := strings.Join(args, " ")
	if !strings.Contains(graph, `/tmp/we\:ird\,dir/captions.ass`) {
		t.Fatalf("expected escaped captions path, got %s", graph)
	}
}

type fakeImages struct {
	fail map[string]bool
	seen []string
}

func (f *fakeImages) Generate(_ context.Context, prompt, _ string) ([]byte, error) {
	f.seen = append(f.seen, prompt)
	if f.fail[prompt] {
		return nil, errors.New("gpu out of memory")
	}
	return pngBytes(), nil
}

func pngBytes() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		for y := range 8 {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

type fakeComposer struct {
	got render.Composition
	err error
}

func (f *fakeComposer) Compose(_ context.Context, c render.Composition) error {
	f.got = c
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(c.OutputPath, []byte("mp4"), 0o644)
}

func seedStore(t *testing.T, store *testsupport.MemoryStore, id string) render.Job {
	t.Helper()
	ctx := context.Background()
	if err := storage.PutJSON(ctx, store, transcript.TranscriptKey(id), sampleBundle()); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}
	if err := store.Put(ctx, transcript.AudioKey(id), []byte("mp3"), storage.ContentTypeMP3); err != nil {
		t.Fatalf("seed audio: %v", err)
	}
	meta := transcript.Metadata{VideoID: id, Title: "Lamp", Status: transcript.StatusProcessing, Duration: 4, ClipCount: 3}
	if err := storage.PutJSON(ctx, store, transcript.MetadataKey(id), meta); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}
	return render.Job{Bucket: "videos", TranscriptKey: transcript.TranscriptKey(id), AudioKey: transcript.AudioKey(id), VideoID: id}
}

func testOptions(t *testing.T) render.Options {
	return render.Options{
		WorkDir:  t.TempDir(),
		TailPad:  2,
		Settings: testSettings(),
		Captions: render.DefaultCaptionStyle(),
	}
}

func TestRendererUploadsImagesAndVideo(t *testing.T) {
	store := testsupport.NewMemoryStore("videos")
	job := seedStore(t, store, "vid1")
	images := &fakeImages{fail: map[string]bool{"a ship at dawn": true}}
	composer := &fakeComposer{}
	opts := testOptions(t)
	r := render.New(store, images, composer, opts, nil)

	out, err := r.Render(context.Background(), job)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.VideoKey != "videos/vid1.mp4" || out.Placeholders != 1 || out.ClipCount != 3 || out.Duration != 4 {
		t.Fatalf("unexpected output %+v", out)
	}
	if got := strings.Join(images.seen, "|"); got != "a lighthouse keeper|lost words|a ship at dawn" {
		t.Fatalf("unexpected prompts %q", got)
	}
	for _, key := range []string{"images/vid1_image_0.png", "images/vid1_image_1.png"} {
		obj, ok := store.Object(key)
		if !ok || obj.ContentType != "image/png" {
			t.Fatalf("expected %s uploaded as png, got %+v ok=%v", key, obj, ok)
		}
	}
	if _, ok := store.Object("images/vid1_image_2.png"); ok {
		t.Fatal("expected no upload for failed image")
	}
	video, ok := store.Object("videos/vid1.mp4")
	if !ok || video.ContentType != "video/mp4" {
		t.Fatalf("expected video upload, got %+v", video)
	}

	layers := composer.got.Layers
	if len(layers) != 3 || layers[2].TextFile == "" || layers[2].Duration != 1.4 || layers[0].Duration != 2.5 {
		t.Fatalf("unexpected layers %+v", layers)
	}
	if composer.got.CaptionsPath == "" {
		t.Fatal("expected captions for image clips")
	}
	if _, err := os.Stat(filepath.Join(opts.WorkDir, "vid1")); !os.IsNotExist(err) {
		t.Fatalf("expected work dir removed, stat err=%v", err)
	}
}

func TestRendererRejectsBadJobs(t *testing.T) {
	store := testsupport.NewMemoryStore("videos")
	r := render.New(store, &fakeImages{}, &fakeComposer{}, testOptions(t), nil)

	_, err := r.Render(context.Background(), render.Job{VideoID: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = r.Render(context.Background(), render.Job{TranscriptKey: "t", AudioKey: "a", VideoID: "../x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unsafe id, got %v", err)
	}
	_, err = r.Render(context.Background(), render.Job{TranscriptKey: "transcripts/none.json", AudioKey: "a", VideoID: "none"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRendererFailsWhenComposeOrProbeFails(t *testing.T) {
	store := testsupport.NewMemoryStore("videos")
	job := seedStore(t, store, "vid2")
	composeErr := services.Wrap(services.ErrExternalTool, "render", "ffmpeg compose", "boom", nil)
	r := render.New(store, &fakeImages{}, &fakeComposer{err: composeErr}, testOptions(t), nil)
	if _, err := r.Render(context.Background(), job); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected compose failure, got %v", err)
	}

	probe := func(context.Context, string) (ffprobe.Result, error) {
		return ffprobe.Result{Format: ffprobe.Format{Duration: "1"}}, nil
	}
	r = render.New(store, &fakeImages{}, &fakeComposer{}, testOptions(t), nil, render.WithProbe(probe))
	_, err := r.Render(context.Background(), job)
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "no video stream") {
		t.Fatalf("expected verification failure, got %v", err)
	}
	if _, ok := store.Object("videos/vid2.mp4"); ok {
		t.Fatal("expected no upload after failed verification")
	}
}

func TestCompleteAndRecordFailure(t *testing.T) {
	store := testsupport.NewMemoryStore("videos")
	seedStore(t, store, "vid3")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	meta, err := render.Complete(context.Background(), store, render.Output{VideoID: "vid3", VideoKey: "videos/vid3.mp4"}, now)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if meta.Status != transcript.StatusCompleted || meta.VideoKey != "videos/vid3.mp4" || meta.Title != "Lamp" || meta.CompletedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	cause := services.Wrap(services.ErrExternalTool, "render", "ffmpeg compose", "exit 1", nil)
	if err := render.RecordFailure(context.Background(), store, "vid4", cause); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	var artifact transcript.ErrorArtifact
	obj, _ := store.Object("errors/vid4_error.json")
	if err := json.Unmarshal(obj.Body, &artifact); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if artifact.Status != "error" || artifact.ExceptionType != "ExternalToolError" || !strings.Contains(artifact.Error, "exit 1") {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
	var failed transcript.Metadata
	obj, _ = store.Object("metadata/vid4.json")
	if err := json.Unmarshal(obj.Body, &failed); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if failed.Status != transcript.StatusError || failed.TranscriptKey != "transcripts/vid4.json" {
		t.Fatalf("unexpected failed metadata %+v", failed)
	}
}

func TestRecordFailureJoinsWriteErrors(t *testing.T) {
	store := testsupport.NewMemoryStore("videos")
	store.FailPut["errors/vid5_error.json"] = errors.New("denied")
	err := render.RecordFailure(context.Background(), store, "vid5", errors.New("boom"))
	if err == nil || !strings.Contains(err.Error(), "write error artifact") {
		t.Fatalf("expected artifact write failure, got %v", err)
	}
	if _, ok := store.Object("metadata/vid5.json"); !ok {
		t.Fatal("expected metadata written despite artifact failure")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Render.KeepWorkFiles = true
	opts := render.OptionsFromConfig(&cfg)
	if opts.TailPad != 2 || !opts.KeepWorkFiles || opts.Settings.ZoomFactor != 1.05 || opts.Captions.Fade != 100*time.Millisecond {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestFFmpegComposeIntegration(t *testing.T) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	cfg := config.Default()
	if _, err := os.Stat(cfg.Render.FontPath); err != nil {
		t.Skip("caption font not installed")
	}
	filters, err := exec.Command(ffmpegPath, "-hide_banner", "-filters").CombinedOutput()
	if err != nil {
		t.Skipf("ffmpeg -filters: %v", err)
	}
	for _, name := range []string{"zoompan", "drawtext", "subtitles"} {
		if !strings.Contains(string(filters), " "+name+" ") {
			t.Skipf("ffmpeg built without %s", name)
		}
	}
	dir := t.TempDir()
	audio := filepath.Join(dir, "narration.mp3")
	gen := exec.Command(ffmpegPath, "-y", "-loglevel", "error", "-f", "lavfi", "-i", "sine=frequency=440:duration=2", audio)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg cannot encode mp3: %v: %s", err, out)
	}
	imagePath := filepath.Join(dir, "image_0.png")
	if err := os.WriteFile(imagePath, pngBytes(), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	textPath := filepath.Join(dir, "placeholder_1.txt")
	if err := os.WriteFile(textPath, []byte("a ship appeared"), 0o644); err != nil {
		t.Fatalf("write text: %v", err)
	}
	captions := filepath.Join(dir, "captions.ass")
	words := []alignment.WordTimestamp{{Word: "hello", Start: 0.1, End: 0.8}}
	if err := os.WriteFile(captions, []byte(render.Captions(words, render.DefaultCaptionStyle())), 0o644); err != nil {
		t.Fatalf("write captions: %v", err)
	}

	settings := render.OptionsFromConfig(&cfg).Settings
	settings.Width, settings.Height = 320, 320
	settings.Preset = "ultrafast"
	out := filepath.Join(dir, "final.mp4")
	composer := render.NewFFmpeg(ffmpegPath, settings)
	err = composer.Compose(context.Background(), render.Composition{
		AudioPath:    audio,
		CaptionsPath: captions,
		OutputPath:   out,
		Duration:     2,
		Layers: []render.Layer{
			{Start: 0, Duration: 1, ImagePath: imagePath},
			{Start: 1, Duration: 1, TextFile: textPath},
		},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return
	}
	report, err := ffprobe.Inspect(context.Background(), "ffprobe", out)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if err := report.Check(ffprobe.Expectation{Width: 320, Height: 320, Duration: 2}); err != nil {
		t.Fatalf("Check: %v", err)
	}
}
