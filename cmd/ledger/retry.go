package main

import (
	"math/rand/v2"
	"time"
)

// sleepBackoff implements spec.md §4.3's retry schedule: attempt n sleeps
// for 2^(n-1)*100ms plus up to 50ms of jitter.
func sleepBackoff(attempt int) {
	base := time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
	jitter := time.Duration(rand.N(50)) * time.Millisecond
	time.Sleep(base + jitter)
}
