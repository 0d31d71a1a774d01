package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Compute returns the delay before retry number attempts (0-based) under
// policy. Unknown policies behave like exp_full_jitter.
func Compute(policy string, base time.Duration, limit time.Duration, attempts int, rng *rand.Rand) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if base <= 0 {
		base = time.Millisecond
	}
	if limit <= 0 {
		limit = base
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	switch policy {
	case "fixed":
		return minDuration(base, limit)
	case "linear":
		return minDuration(base*time.Duration(maxInt(1, attempts)), limit)
	case "exponential":
		return exponential(base, limit, attempts)
	case "exp_equal_jitter":
		ceiling := exponential(base, limit, attempts)
		half := ceiling / 2
		return half + time.Duration(rng.Int63n(int64(ceiling-half)+1))
	default: // exp_full_jitter
		ceiling := exponential(base, limit, attempts)
		if ceiling <= 0 {
			return 0
		}
		return time.Duration(rng.Int63n(int64(ceiling) + 1))
	}
}

// Sleep waits for d or until done is closed. It reports whether the full delay elapsed.
func Sleep(done <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-done:
		return false
	}
}

func exponential(base, limit time.Duration, attempts int) time.Duration {
	f := float64(base) * math.Pow(2, float64(attempts))
	if f >= float64(limit) {
		return limit
	}
	return time.Duration(f)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
