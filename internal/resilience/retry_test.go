package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
}

func TestRetrySucceedsFirst(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("Retry() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return apperrors.New(apperrors.StoreFailed, "database is locked")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Retry() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsRetries(t *testing.T) {
	calls := 0
	retryErr := status.Error(codes.Unavailable, "always fail")

	err := Retry(context.Background(), fastRetry(2), func() error {
		calls++
		return retryErr
	})

	if !errors.Is(err, retryErr) {
		t.Errorf("Retry() = %v, want %v", err, retryErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryNonRetryableError(t *testing.T) {
	calls := 0
	cfgErr := apperrors.New(apperrors.Configuration, "archive dir is a file")

	err := Retry(context.Background(), fastRetry(5), func() error {
		calls++
		return cfgErr
	})

	if !errors.Is(err, cfgErr) {
		t.Errorf("Retry() = %v, want %v", err, cfgErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		return status.Error(codes.Unavailable, "fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() = %v, want context.Canceled", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"source gone", apperrors.New(apperrors.SourceUnavailable, "no video"), true},
		{"wrapped store", fmt.Errorf("insert: %w", apperrors.New(apperrors.StoreFailed, "busy")), true},
		{"config", apperrors.New(apperrors.Configuration, "bad"), false},
		{"length mismatch", apperrors.New(apperrors.LengthMismatch, "64 vs 16"), false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"plain", errors.New("eof"), true},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsRetryableGRPC(t *testing.T) {
	tests := []struct {
		code codes.Code
		want bool
	}{
		{codes.Unavailable, true},
		{codes.DeadlineExceeded, true},
		{codes.ResourceExhausted, true},
		{codes.Aborted, true},
		{codes.Internal, true},
		{codes.InvalidArgument, false},
		{codes.NotFound, false},
		{codes.PermissionDenied, false},
		{codes.OK, false},
	}

	for _, tt := range tests {
		err := status.Error(tt.code, "test")
		if got := IsRetryableGRPC(err); got != tt.want {
			t.Errorf("IsRetryableGRPC(%v) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestConnectRetryConfig(t *testing.T) {
	cfg := ConnectRetryConfig()
	if cfg.MaxRetries != ConnectMaxRetries || cfg.BaseDelay != ConnectBaseDelay || cfg.MaxDelay != ConnectMaxDelay {
		t.Errorf("ConnectRetryConfig = %+v", cfg)
	}
	if !cfg.IsRetryable(errors.New("connection refused")) {
		t.Error("connect errors should always be retried")
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFactor: 0}

	for attempt, want := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond} {
		if got := backoffDelay(cfg, attempt); got != want {
			t.Errorf("attempt %d delay = %v, want %v", attempt, got, want)
		}
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, JitterFactor: 0}

	if d := backoffDelay(cfg, 5); d != 300*time.Millisecond {
		t.Errorf("attempt 5 delay = %v, want 300ms (capped)", d)
	}
}
