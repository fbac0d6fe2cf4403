package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRound1(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{3.14, 3.1},
		{3.15, 3.2},
		{-2.45, -2.4},
		{0, 0},
		{1000.05, 1000.1},
	}
	for _, c := range cases {
		if got := Round1(c.in); got != c.want {
			t.Errorf("Round1(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestWeekStart(t *testing.T) {
	// 2024-01-03 is a Wednesday; the week begins Sunday 2023-12-31.
	if got := WeekStart("2024-01-03"); got != "2023-12-31" {
		t.Errorf("WeekStart(2024-01-03) = %s, want 2023-12-31", got)
	}
	// A Sunday is its own week start.
	if got := WeekStart("2023-12-31"); got != "2023-12-31" {
		t.Errorf("WeekStart(2023-12-31) = %s, want 2023-12-31", got)
	}
}

func TestMonthKey(t *testing.T) {
	if got := MonthKey("2024-02-29"); got != "2024-02" {
		t.Errorf("MonthKey = %s, want 2024-02", got)
	}
}

func TestNextDay(t *testing.T) {
	if got := NextDay("2024-02-28"); got != "2024-02-29" {
		t.Errorf("NextDay = %s, want 2024-02-29 (leap year)", got)
	}
	if got := NextDay("2023-12-31"); got != "2024-01-01" {
		t.Errorf("NextDay = %s, want 2024-01-01", got)
	}
}

func TestValidDate(t *testing.T) {
	if !ValidDate("2024-01-15") {
		t.Error("expected 2024-01-15 to be valid")
	}
	for _, bad := range []string{"2024-13-01", "15-01-2024", "today", ""} {
		if ValidDate(bad) {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1.0}
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1.0}
	sentinel := errors.New("persistent")
	err := Retry(context.Background(), cfg, func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want %v", err, sentinel)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 1.0}
	err := Retry(ctx, cfg, func() error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBackoffCapped(t *testing.T) {
	if got := Backoff(0, 100*time.Millisecond, time.Second, 2.0); got != 100*time.Millisecond {
		t.Errorf("attempt 0 delay = %v, want 100ms", got)
	}
	if got := Backoff(10, 100*time.Millisecond, time.Second, 2.0); got != time.Second {
		t.Errorf("attempt 10 delay = %v, want capped at 1s", got)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Hour})
	fail := func(context.Context) error { return errors.New("boom") }

	for i := 0; i < 2; i++ {
		if err := b.Execute(context.Background(), fail); err == nil {
			t.Fatal("expected failure")
		}
	}
	if st := b.State(); st != BreakerOpen {
		t.Fatalf("state = %s, want OPEN", st)
	}

	calls := 0
	err := b.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen", err)
	}
	if calls != 0 {
		t.Error("open breaker must not invoke the function")
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: time.Millisecond})
	if err := b.Execute(context.Background(), func(context.Context) error { return errors.New("boom") }); err == nil {
		t.Fatal("expected failure")
	}
	if st := b.State(); st != BreakerOpen {
		t.Fatalf("state = %s, want OPEN", st)
	}

	time.Sleep(5 * time.Millisecond)
	if st := b.State(); st != BreakerHalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN after cooldown", st)
	}
	if err := b.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if st := b.State(); st != BreakerClosed {
		t.Errorf("state = %s, want CLOSED after successful probe", st)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: time.Millisecond})
	b.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)
	b.Execute(context.Background(), func(context.Context) error { return errors.New("still down") })
	if st := b.State(); st != BreakerOpen {
		t.Errorf("state = %s, want OPEN after failed probe", st)
	}
}
