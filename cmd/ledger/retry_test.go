package main

import (
	"testing"
	"time"
)

func TestSleepBackoffBounds(t *testing.T) {
	cases := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, 100 * time.Millisecond, 150 * time.Millisecond},
		{2, 200 * time.Millisecond, 250 * time.Millisecond},
		{3, 400 * time.Millisecond, 450 * time.Millisecond},
	}
	for _, tc := range cases {
		start := time.Now()
		sleepBackoff(tc.attempt)
		elapsed := time.Since(start)
		if elapsed < tc.min || elapsed > tc.max+50*time.Millisecond {
			t.Fatalf("attempt %d: elapsed %v not in [%v, %v]", tc.attempt, elapsed, tc.min, tc.max)
		}
	}
}
