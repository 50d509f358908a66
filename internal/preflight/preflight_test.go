package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyreel/internal/config"
	"storyreel/internal/deps"
	"storyreel/internal/services/runpod"
	"storyreel/internal/testsupport"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFont(t *testing.T) {
	font := filepath.Join(t.TempDir(), "font.ttf")
	if err := os.WriteFile(font, []byte("ttf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckFont(font); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	if r := CheckFont(filepath.Join(t.TempDir(), "missing.ttf")); r.Passed {
		t.Fatal("expected failure for missing font")
	}
	if r := CheckFont(t.TempDir()); r.Passed {
		t.Fatal("expected failure for directory")
	}
}

func TestCheckBinaries(t *testing.T) {
	results := CheckBinaries([]deps.Requirement{
		{Name: "Shell", Command: "sh"},
		{Name: "Missing", Command: "storyreel-missing-binary"},
		{Name: "Optional", Command: "storyreel-missing-binary", Optional: true},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Passed || results[1].Passed || !results[2].Passed {
		t.Fatalf("unexpected results %+v", results)
	}
	if !strings.HasPrefix(results[2].Detail, "optional") {
		t.Fatalf("expected optional note, got %q", results[2].Detail)
	}
}

func TestCheckBucket(t *testing.T) {
	if r := CheckBucket(context.Background(), "reels", fakePinger{}); !r.Passed || r.Detail != "reels" {
		t.Fatalf("expected pass, got %+v", r)
	}
	if r := CheckBucket(context.Background(), "reels", fakePinger{err: errors.New("access denied")}); r.Passed {
		t.Fatal("expected failure")
	}
}

func TestCheckSecret(t *testing.T) {
	if CheckSecret("key", " ").Passed {
		t.Fatal("expected blank secret to fail")
	}
	if !CheckSecret("key", "abc").Passed {
		t.Fatal("expected configured secret to pass")
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	result := CheckLLM(context.Background(), "LLM", config.LLM{})
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", config.LLM{APIKey: "good-key", BaseURL: srv.URL, Model: "m"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckPod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"pod":{"id":"pod-test","name":"render","runtime":{"uptimeInSeconds":42},"desiredStatus":"RUNNING"}}}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Pod.APIKey = "key"
	cfg.Pod.GraphQLURL = srv.URL
	result := CheckPod(context.Background(), cfg)
	if !result.Passed || result.Detail != "render running, up 42s" {
		t.Fatalf("unexpected result %+v", result)
	}

	cfg.Pod.APIKey = ""
	if CheckPod(context.Background(), cfg).Passed {
		t.Fatal("expected missing credentials to fail")
	}
}

func TestPodDetailStopped(t *testing.T) {
	if got := PodDetail(runpod.PodStatus{ID: "pod1", DesiredStatus: "EXITED"}); got != "pod1 exited" {
		t.Fatalf("unexpected detail %q", got)
	}
}

func TestRunWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	font := filepath.Join(t.TempDir(), "font.ttf")
	if err := os.WriteFile(font, []byte("ttf"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Render.FontPath = font
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunWorker(context.Background(), cfg, fakePinger{})
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, failed: %+v", failed)
	}
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	if got := strings.Join(names, ","); got != "FFmpeg,FFprobe,Caption font,Work directory,State directory,Storage bucket" {
		t.Fatalf("unexpected checks %s", got)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}
