package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected InitialDelay=100ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("expected MaxDelay=5s, got %v", cfg.MaxDelay)
	}
	if StartupConfig().MaxRetries <= cfg.MaxRetries {
		t.Errorf("expected startup config to retry more than the default")
	}
}

func TestDo_Success(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(), func() error {
		callCount++
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	want := errors.New("still down")
	callCount := 0
	err := Do(context.Background(), fastConfig(), func() error {
		callCount++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected last error, got %v", err)
	}
	if callCount != 4 {
		t.Errorf("expected 4 calls (1 + 3 retries), got %d", callCount)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	callCount := 0
	err := Do(ctx, cfg, func() error {
		callCount++
		cancel()
		return errors.New("connection refused")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDo_OnRetryAndBackoff(t *testing.T) {
	cfg := &Config{
		MaxRetries:   4,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
	var waits []time.Duration
	var attempts []int
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		attempts = append(attempts, attempt)
		waits = append(waits, wait)
	}

	_ = Do(context.Background(), cfg, func() error { return errors.New("timed out") })

	wantWaits := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}
	if fmt.Sprint(waits) != fmt.Sprint(wantWaits) {
		t.Errorf("expected waits %v, got %v", wantWaits, waits)
	}
	if fmt.Sprint(attempts) != fmt.Sprint([]int{1, 2, 3, 4}) {
		t.Errorf("unexpected attempts %v", attempts)
	}
}

func TestDoWithResult_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	got, err := DoWithResult(context.Background(), fastConfig(), func() (string, error) {
		callCount++
		if callCount < 2 {
			return "", errors.New("connection reset by peer")
		}
		return "pool", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "pool" {
		t.Errorf("expected result %q, got %q", "pool", got)
	}
}

func TestDoWithResult_NilConfig(t *testing.T) {
	got, err := DoWithResult(context.Background(), nil, func() (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Errorf("expected (7, nil), got (%d, %v)", got, err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), want: true},
		{name: "wrapped timeout", err: fmt.Errorf("ping: %w", errors.New("i/o timeout")), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: false},
		{name: "pg serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "pg connection exception", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "pg unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "bad credentials", err: errors.New("password authentication failed"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoIfRetryable_NonRetryableError(t *testing.T) {
	callCount := 0
	_, err := DoIfRetryable(context.Background(), fastConfig(), func() (int, error) {
		callCount++
		return 0, errors.New("password authentication failed")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDoIfRetryable_RetryableError(t *testing.T) {
	callCount := 0
	got, err := DoIfRetryable(context.Background(), fastConfig(), func() (int, error) {
		callCount++
		if callCount < 3 {
			return 0, &pgconn.PgError{Code: "40P01"}
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Errorf("expected (42, nil), got (%d, %v)", got, err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}
