package storage_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"storyreel/internal/config"
	"storyreel/internal/services"
	"storyreel/internal/storage"
)

func TestDirRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := storage.NewDir(t.TempDir(), "reels")

	if err := storage.PutJSON(ctx, dir, "metadata/v1.json", map[string]string{"status": "processing"}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	var got map[string]string
	if err := storage.GetJSON(ctx, dir, "metadata/v1.json", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got["status"] != "processing" {
		t.Fatalf("unexpected payload %v", got)
	}
	ok, err := dir.Exists(ctx, "metadata/v1.json")
	if err != nil || !ok {
		t.Fatalf("expected object to exist: %v %v", ok, err)
	}
}

func TestDirMissingIsNotFound(t *testing.T) {
	dir := storage.NewDir(t.TempDir(), "reels")
	_, err := dir.Get(context.Background(), "audio/none.mp3")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	ok, err := dir.Exists(context.Background(), "audio/none.mp3")
	if err != nil || ok {
		t.Fatalf("expected missing object, got %v %v", ok, err)
	}
}

func TestDirRejectsTraversal(t *testing.T) {
	dir := storage.NewDir(t.TempDir(), "reels")
	for _, key := range []string{"", "../escape", "/abs/path"} {
		if err := dir.Put(context.Background(), key, []byte("x"), ""); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("key %q: expected validation error, got %v", key, err)
		}
	}
}

func TestDirPutFileAndForBucket(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	src := filepath.Join(t.TempDir(), "video.mp4")
	if err := os.WriteFile(src, []byte("mp4"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	other := storage.NewDir(root, "reels").ForBucket("archive")
	if other.Bucket() != "archive" {
		t.Fatalf("unexpected bucket %q", other.Bucket())
	}
	if err := other.PutFile(ctx, "videos/v.mp4", src, storage.ContentTypeMP4); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "archive", "videos", "v.mp4")); err != nil {
		t.Fatalf("expected file under bucket dir: %v", err)
	}
}

type s3Request struct {
	method      string
	path        string
	contentType string
}

func fakeS3(t *testing.T, objects map[string]string) (*httptest.Server, *[]s3Request) {
	t.Helper()
	var mu sync.Mutex
	var requests []s3Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, s3Request{method: r.Method, path: r.URL.Path, contentType: r.Header.Get("Content-Type")})
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		switch r.Method {
		case http.MethodPut:
			w.WriteHeader(http.StatusOK)
		case http.MethodGet, http.MethodHead:
			body, ok := objects[r.URL.Path]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				if r.Method == http.MethodGet {
					_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
				}
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte(body))
			}
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	return server, &requests
}

func newS3(t *testing.T, endpoint string) *storage.S3Store {
	t.Helper()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	store, err := storage.NewS3Store(context.Background(), config.Storage{
		Backend:         config.StorageS3,
		Bucket:          "reels",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		UsePathStyle:    true,
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	return store
}

func TestS3StorePutSetsContentType(t *testing.T) {
	server, requests := fakeS3(t, nil)
	defer server.Close()
	store := newS3(t, server.URL)

	if err := store.Put(context.Background(), "audio/v1.mp3", []byte("mp3"), storage.ContentTypeMP3); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*requests))
	}
	req := (*requests)[0]
	if req.method != http.MethodPut || req.path != "/reels/audio/v1.mp3" || req.contentType != "audio/mpeg" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestS3StoreGetAndNotFound(t *testing.T) {
	server, _ := fakeS3(t, map[string]string{"/reels/transcripts/v1.json": `{"script":"hi"}`})
	defer server.Close()
	store := newS3(t, server.URL)
	ctx := context.Background()

	data, err := store.Get(ctx, "transcripts/v1.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(string(data), "hi") {
		t.Fatalf("unexpected body %q", data)
	}
	if _, err := store.Get(ctx, "transcripts/missing.json"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	ok, err := store.Exists(ctx, "transcripts/missing.json")
	if err != nil || ok {
		t.Fatalf("expected missing object, got %v %v", ok, err)
	}
}

func TestS3StoreForBucket(t *testing.T) {
	server, requests := fakeS3(t, nil)
	defer server.Close()
	store := newS3(t, server.URL).ForBucket("other")
	if err := store.Put(context.Background(), "errors/v_error.json", []byte("{}"), storage.ContentTypeJSON); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := (*requests)[0].path; got != "/other/errors/v_error.json" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestS3StoreRequiresBucket(t *testing.T) {
	store := storage.NewS3StoreWithClient(nil, "")
	if err := store.Put(context.Background(), "k", nil, ""); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
