package upstream

import (
	"math/rand"
	"time"
)

// BackoffPolicy governs the reconnect delay schedule, a direct structural
// port of the teacher's client-go/retry.go RetryPolicy — adapted from
// HTTP-response retry to TCP-reconnect retry (SPEC_FULL.md §10).
type BackoffPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultBackoffPolicy starts at 100ms (the distilled spec's suggested
// fixed delay) and doubles up to a 10s cap.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// next returns the delay to use for this attempt and the delay to use for
// the subsequent one, with jitter applied to the returned delay only.
func (p BackoffPolicy) next(delay time.Duration) (wait, nextDelay time.Duration) {
	jitter := time.Duration(rand.Float64() * float64(delay))
	wait = delay/2 + jitter/2
	nextDelay = time.Duration(float64(delay) * p.Multiplier)
	if nextDelay > p.MaxDelay {
		nextDelay = p.MaxDelay
	}
	return wait, nextDelay
}
