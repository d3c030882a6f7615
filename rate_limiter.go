package tandem

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// AdmissionLimiter paces how fast admitted queue items may start their
// transport call. It complements the concurrency ceiling, it does not replace it.
type AdmissionLimiter struct {
	limiter *rate.Limiter
}

// NewAdmissionLimiter allows perSecond starts per second with the given burst.
// A burst below 1 is raised to 1.
func NewAdmissionLimiter(perSecond float64, burst int) *AdmissionLimiter {
	if burst < 1 {
		burst = 1
	}
	return &AdmissionLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a start is permitted or ctx is done.
func (l *AdmissionLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Tokens reports the currently available tokens.
func (l *AdmissionLimiter) Tokens() float64 {
	if l == nil {
		return 0
	}
	return l.limiter.TokensAt(time.Now())
}

// Limit returns the configured rate.
func (l *AdmissionLimiter) Limit() float64 {
	if l == nil {
		return 0
	}
	return float64(l.limiter.Limit())
}

// Burst returns the configured burst.
func (l *AdmissionLimiter) Burst() int {
	if l == nil {
		return 0
	}
	return l.limiter.Burst()
}
