package providers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailoverReason
	}{
		{"timeout", errors.New("context deadline exceeded"), FailoverTimeout},
		{"rate limit text", errors.New("rate limit exceeded, slow down"), FailoverRateLimit},
		{"rate limit status", errors.New("unexpected status 429"), FailoverRateLimit},
		{"auth", errors.New("401 unauthorized"), FailoverAuth},
		{"billing", errors.New("insufficient quota"), FailoverBilling},
		{"server error", errors.New("502 bad gateway"), FailoverServerError},
		{"unknown", errors.New("something odd"), FailoverUnknown},
		{"nil", nil, FailoverUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Fatalf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFailoverReasonRetryable(t *testing.T) {
	retryable := []FailoverReason{FailoverRateLimit, FailoverTimeout, FailoverServerError}
	for _, r := range retryable {
		if !r.IsRetryable() {
			t.Fatalf("%v should be retryable", r)
		}
	}
	fatal := []FailoverReason{FailoverAuth, FailoverBilling, FailoverInvalidRequest, FailoverContentFilter}
	for _, r := range fatal {
		if r.IsRetryable() {
			t.Fatalf("%v should not be retryable", r)
		}
	}
}

func TestProviderErrorWrapping(t *testing.T) {
	cause := errors.New("rate limit exceeded")
	err := NewProviderError("anthropic", "claude-sonnet-4-20250514", cause)

	if err.Reason != FailoverRateLimit {
		t.Fatalf("cause should classify at construction, got %v", err.Reason)
	}
	if !errors.Is(err, cause) {
		t.Fatal("ProviderError must unwrap to its cause")
	}

	wrapped := fmt.Errorf("request failed: %w", err)
	got, ok := GetProviderError(wrapped)
	if !ok || got != err {
		t.Fatalf("GetProviderError must find the error through wrapping, got %v ok=%v", got, ok)
	}
}

func TestWithStatusReclassifies(t *testing.T) {
	err := NewProviderError("openai", "gpt-4o", errors.New("opaque failure"))
	if err.Reason != FailoverUnknown {
		t.Fatalf("opaque cause should start unknown, got %v", err.Reason)
	}
	err = err.WithStatus(http.StatusTooManyRequests)
	if err.Reason != FailoverRateLimit {
		t.Fatalf("429 must reclassify to rate_limit, got %v", err.Reason)
	}
}
