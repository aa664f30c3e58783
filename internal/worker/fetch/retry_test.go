package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   StatusClass
	}{
		{200, StatusOK},
		{203, StatusOK},
		{204, StatusOK},
		{304, StatusPermanent},
		{400, StatusPermanent},
		{401, StatusPermanent},
		{403, StatusPermanent},
		{404, StatusPermanent},
		{410, StatusPermanent},
		{429, StatusRetryable},
		{500, StatusRetryable},
		{502, StatusRetryable},
		{503, StatusRetryable},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if got := ClassifyHTTPStatus(tt.status); got != tt.want {
				t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"サイズ超過", fmt.Errorf("read: %w", ErrBodyTooLarge), "too_large"},
		{"ステータス", &StatusError{StatusCode: 404}, "status"},
		{"タイムアウト", fmt.Errorf("get: %w", context.DeadlineExceeded), "timeout"},
		{"その他", errors.New("connection refused"), "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failureReason(tt.err); got != tt.want {
				t.Errorf("failureReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRetryPolicy_StopsAfterMaxRetries(t *testing.T) {
	policy := newRetryPolicy(context.Background(), 2, time.Millisecond, 0)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return errors.New("transient")
	}, policy)

	if err == nil {
		t.Fatal("expected error after retries are exhausted")
	}
	// 初回 + リトライ2回
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestNewRetryPolicy_PermanentStopsImmediately(t *testing.T) {
	policy := newRetryPolicy(context.Background(), 5, time.Millisecond, 0)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return backoff.Permanent(&StatusError{StatusCode: 404})
	}, policy)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestNewRetryPolicy_ZeroRetries(t *testing.T) {
	policy := newRetryPolicy(context.Background(), 0, time.Millisecond, 0)

	attempts := 0
	_ = backoff.Retry(func() error {
		attempts++
		return errors.New("transient")
	}, policy)

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
