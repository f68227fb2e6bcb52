package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
}

func TestMonthKey(t *testing.T) {
	got := MonthKey(time.Date(2024, 3, 7, 15, 4, 0, 0, time.UTC))
	if got != "2024-03" {
		t.Errorf("MonthKey = %q, want 2024-03", got)
	}
}

func TestPrevTradingDay(t *testing.T) {
	// Monday 2024-03-04 steps back over the weekend to Friday 2024-03-01.
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	got := PrevTradingDay(monday)
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("PrevTradingDay(%v) = %v, want %v", monday, got, want)
	}
}

func TestLookbackStart(t *testing.T) {
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	start := LookbackStart(end, 252)
	if days := end.Sub(start).Hours() / 24; days < 365 {
		t.Errorf("LookbackStart covered only %.0f calendar days for a year of trading days", days)
	}
}
