package testsupport

import (
	"context"
	"testing"

	"storyreel/internal/config"
	"storyreel/internal/queue"
	"storyreel/internal/transcript"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob enqueues a render job for videoID using the standard storage keys.
func NewJob(t testing.TB, store *queue.Store, videoID string) *queue.Job {
	t.Helper()

	job, _, err := store.Enqueue(context.Background(), queue.NewJob{
		VideoID:       videoID,
		Bucket:        "test-bucket",
		TranscriptKey: transcript.TranscriptKey(videoID),
		AudioKey:      transcript.AudioKey(videoID),
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
