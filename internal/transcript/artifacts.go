package transcript

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyreel/internal/services"
)

// Metadata statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

const videoIDTag = "_oguzhancttnky"

// Metadata is the record stored under metadata/{id}.json. The worker rewrites
// Status when it finishes so consumers can tell a finished video apart from
// one still rendering.
type Metadata struct {
	VideoID       string   `json:"video_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Hashtags      []string `json:"hashtags"`
	Script        string   `json:"script"`
	TranscriptKey string   `json:"transcript_key"`
	AudioKey      string   `json:"audio_key"`
	Duration      float64  `json:"duration"`
	ClipCount     int      `json:"clip_count"`
	Status        string   `json:"status"`
	VideoKey      string   `json:"video_key,omitempty"`
	Error         string   `json:"error,omitempty"`
	CompletedAt   string   `json:"completed_at,omitempty"`
}

// ErrorArtifact is stored under errors/{id}_error.json when a render fails.
type ErrorArtifact struct {
	VideoID       string `json:"video_id"`
	Status        string `json:"status"`
	Error         string `json:"error"`
	ExceptionType string `json:"exception_type"`
}

// NewErrorArtifact describes err for the given video.
func NewErrorArtifact(videoID string, err error) ErrorArtifact {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ErrorArtifact{
		VideoID:       videoID,
		Status:        StatusError,
		Error:         msg,
		ExceptionType: services.ExceptionType(err),
	}
}

// Success is the worker's result for a finished render.
type Success struct {
	Success   bool    `json:"success"`
	VideoID   string  `json:"video_id"`
	VideoKey  string  `json:"video_key"`
	Duration  float64 `json:"duration"`
	ClipCount int     `json:"clip_count"`
}

// NewVideoID builds a video id from the UTC timestamp and a random UUID. A
// nil source uses crypto randomness.
func NewVideoID(now time.Time, r *rand.Rand) string {
	var id uuid.UUID
	if r != nil {
		var b [16]byte
		for i := 0; i < len(b); i += 8 {
			v := r.Uint64()
			for j := range 8 {
				b[i+j] = byte(v >> (8 * j))
			}
		}
		b[6] = (b[6] & 0x0f) | 0x40
		b[8] = (b[8] & 0x3f) | 0x80
		id = uuid.UUID(b)
	} else {
		id = uuid.New()
	}
	return now.UTC().Format("02_01_2006_15_04_05") + videoIDTag + id.String()
}

// ValidVideoID reports whether id is safe to embed in a storage key.
func ValidVideoID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return false
	}
	return true
}

// TranscriptKey returns the storage key of the transcript bundle.
func TranscriptKey(id string) string { return fmt.Sprintf("transcripts/%s.json", id) }

// MetadataKey returns the storage key of the metadata record.
func MetadataKey(id string) string { return fmt.Sprintf("metadata/%s.json", id) }

// AudioKey returns the storage key of the voiceover.
func AudioKey(id string) string { return fmt.Sprintf("audio/%s.mp3", id) }

// ImageKey returns the storage key of clip i's image.
func ImageKey(id string, i int) string { return fmt.Sprintf("images/%s_image_%d.png", id, i) }

// VideoKey returns the storage key of the rendered video.
func VideoKey(id string) string { return fmt.Sprintf("videos/%s.mp4", id) }

// ErrorKey returns the storage key of the error artifact.
func ErrorKey(id string) string { return fmt.Sprintf("errors/%s_error.json", id) }

// VideoIDFromTranscriptKey recovers the video id from a transcript key.
func VideoIDFromTranscriptKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "transcripts/") || !strings.HasSuffix(key, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, "transcripts/"), ".json")
	if !ValidVideoID(id) {
		return "", false
	}
	return id, true
}
