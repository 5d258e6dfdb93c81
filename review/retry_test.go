package review

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", errors.New("request failed: 429 Too Many Requests"), true},
		{"server error", errors.New("unexpected status 500"), true},
		{"bad gateway", errors.New("502 from upstream"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"timeout", errors.New("dial: i/o timeout"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"auth", errors.New("401 unauthorized"), false},
		{"bad request", errors.New("invalid model name"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryWithBackoffNonRetryableFailsFast(t *testing.T) {
	calls := 0
	_, err := retryWithBackoff(context.Background(), discardLogger(), "test", func() (int, error) {
		calls++
		return 0, errors.New("401 unauthorized")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoffSucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := retryWithBackoff(context.Background(), discardLogger(), "test", func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil || got != "ok" || calls != 1 {
		t.Errorf("got %q err %v after %d calls, want ok/nil/1", got, err, calls)
	}
}

func TestRetryWithBackoffHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retryWithBackoff(ctx, discardLogger(), "test", func() (int, error) {
		return 0, fmt.Errorf("503 unavailable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
