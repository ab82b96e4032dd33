package providers

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota": ErrorQuota,
		"429 rate":           ErrorRate,
		"context too long":   ErrorContext,
		"timeout":            ErrorTransient,
		"connection refused": ErrorTransient,
		"bad request":        ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(errors.New("service temporarily unavailable")) {
		t.Fatal("transient error should be retryable")
	}
	if Retryable(errors.New("invalid api key")) {
		t.Fatal("permanent error should not be retryable")
	}
	if Retryable(nil) {
		t.Fatal("nil error should not be retryable")
	}
}
