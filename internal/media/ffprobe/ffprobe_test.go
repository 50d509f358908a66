package ffprobe

import (
	"math"
	"strings"
	"testing"
)

const sampleReport = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1080, "height": 1080, "avg_frame_rate": "30/1"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "44100", "channels": 1}
  ],
  "format": {"filename": "out.mp4", "duration": "34.020000", "size": "2048", "bit_rate": "2100000", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`

func TestParseAndCheck(t *testing.T) {
	result, err := Parse([]byte(sampleReport))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	if result.SizeBytes() != 2048 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	if err := result.Check(Expectation{Width: 1080, Height: 1080, Duration: 34}); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestCheckReportsEveryProblem(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", Width: 720, Height: 1280}},
		Format:  Format{Duration: "10"},
	}
	err := result.Check(Expectation{Width: 1080, Height: 1080, Duration: 34})
	if err == nil {
		t.Fatal("expected check failure")
	}
	for _, want := range []string{"720x1280", "no audio stream", "duration 10"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
	if err := (Result{}).Check(Expectation{}); err == nil || !strings.Contains(err.Error(), "no video stream") {
		t.Fatalf("expected missing video stream, got %v", err)
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", Size: "-1"}}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}
