package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"mirrorcast/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "relay", "spawn", "failed", base)
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
	for _, fragment := range []string{"relay", "spawn", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransient, "destination", "transition", "503", nil), true},
		{"timeout", services.Wrap(services.ErrTimeout, "feed", "probe", "slow", nil), true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "destination", "auth", "missing token", nil), false},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestCauseLabels(t *testing.T) {
	if got := services.Cause(services.Wrap(services.ErrConfiguration, "", "", "x", nil)); got != "configuration" {
		t.Fatalf("unexpected cause %q", got)
	}
	if got := services.Cause(errors.New("plain")); got != "unknown" {
		t.Fatalf("unexpected cause %q", got)
	}
	if got := services.Cause(nil); got != "" {
		t.Fatalf("expected empty cause for nil, got %q", got)
	}
}
