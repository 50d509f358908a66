package services_test

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"storyreel/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "render", "compose", "ffmpeg failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"render", "compose", "ffmpeg failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestExceptionType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "script", "parse", "bad", nil), "ValidationError"},
		{services.Wrap(services.ErrExternalTool, "tts", "synthesize", "status 400", nil), "ExternalToolError"},
		{services.Wrap(services.ErrTransient, "llm", "chat", "status 503", nil), "TransientError"},
		{fmt.Errorf("outer: %w", services.ErrTimeout), "TimeoutError"},
		{errors.New("plain"), "Exception"},
	}
	for _, tc := range tests {
		if got := services.ExceptionType(tc.err); got != tc.want {
			t.Fatalf("ExceptionType(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestStatusMarker(t *testing.T) {
	if !errors.Is(services.StatusMarker(http.StatusTooManyRequests), services.ErrTransient) {
		t.Fatal("expected 429 to be transient")
	}
	if !errors.Is(services.StatusMarker(http.StatusBadGateway), services.ErrTransient) {
		t.Fatal("expected 502 to be transient")
	}
	if !errors.Is(services.StatusMarker(http.StatusUnauthorized), services.ErrExternalTool) {
		t.Fatal("expected 401 to be external tool error")
	}
	if services.Retryable(services.StatusMarker(http.StatusBadRequest)) {
		t.Fatal("expected 400 to be permanent")
	}
}
