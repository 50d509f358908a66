package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storyreel/internal/services"
	"storyreel/internal/storage"
	"storyreel/internal/transcript"
)

// Complete rewrites metadata/{id}.json with status completed and the video
// key. This write is what tells consumers the video is finished.
func Complete(ctx context.Context, store storage.Store, out Output, now time.Time) (transcript.Metadata, error) {
	meta, err := loadMetadata(ctx, store, out.VideoID)
	if err != nil {
		return transcript.Metadata{}, err
	}
	meta.Status = transcript.StatusCompleted
	meta.VideoKey = out.VideoKey
	meta.Error = ""
	meta.CompletedAt = now.UTC().Format(time.RFC3339)
	if meta.Duration == 0 {
		meta.Duration = out.Duration
	}
	if meta.ClipCount == 0 {
		meta.ClipCount = out.ClipCount
	}
	if err := storage.PutJSON(ctx, store, transcript.MetadataKey(out.VideoID), meta); err != nil {
		return transcript.Metadata{}, fmt.Errorf("write completion metadata: %w", err)
	}
	return meta, nil
}

// RecordFailure stores errors/{id}_error.json and marks the metadata as
// failed. Both writes are attempted; their errors are joined.
func RecordFailure(ctx context.Context, store storage.Store, videoID string, cause error) error {
	artifact := transcript.NewErrorArtifact(videoID, cause)
	artifactErr := storage.PutJSON(ctx, store, transcript.ErrorKey(videoID), artifact)
	if artifactErr != nil {
		artifactErr = fmt.Errorf("write error artifact: %w", artifactErr)
	}

	var metaErr error
	meta, err := loadMetadata(ctx, store, videoID)
	if err == nil {
		meta.Status = transcript.StatusError
		meta.Error = artifact.Error
		err = storage.PutJSON(ctx, store, transcript.MetadataKey(videoID), meta)
	}
	if err != nil {
		metaErr = fmt.Errorf("mark metadata failed: %w", err)
	}
	return errors.Join(artifactErr, metaErr)
}

// loadMetadata reads the orchestrator's metadata, starting a fresh record
// when none was stored.
func loadMetadata(ctx context.Context, store storage.Store, videoID string) (transcript.Metadata, error) {
	var meta transcript.Metadata
	err := storage.GetJSON(ctx, store, transcript.MetadataKey(videoID), &meta)
	switch {
	case err == nil:
		return meta, nil
	case errors.Is(err, services.ErrNotFound):
		return transcript.Metadata{
			VideoID:       videoID,
			TranscriptKey: transcript.TranscriptKey(videoID),
			AudioKey:      transcript.AudioKey(videoID),
		}, nil
	default:
		return transcript.Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
}
