package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestOr(t *testing.T) {
	if _, ok := Or(nil).(RealClock); !ok {
		t.Errorf("Or(nil) = %T, want RealClock", Or(nil))
	}
	mock := NewMockClock(time.Unix(0, 0))
	if Or(mock) != Clock(mock) {
		t.Error("Or() should return a non-nil clock unchanged")
	}
}

func TestMockClock_SleepAdvances(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Sleep(100 * time.Millisecond)
	clock.Sleep(0)
	clock.Advance(time.Second)

	if got := clock.Since(start); got != 1100*time.Millisecond {
		t.Errorf("Since() = %v, want 1.1s", got)
	}
	want := []time.Duration{100 * time.Millisecond, 0}
	got := clock.Sleeps()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Sleeps() = %v, want %v", got, want)
	}

	// The returned slice is a copy.
	got[0] = time.Hour
	if clock.Sleeps()[0] != 100*time.Millisecond {
		t.Error("Sleeps() returned an aliased slice")
	}
}
