package github

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Defaults for the cooperative rate-limit guard.
const (
	// defaultQuotaMax is the optimistic starting quota before the first
	// response (or REST seed) corrects it.
	defaultQuotaMax = 5000

	// defaultQuotaThreshold is the remaining-quota level at or below which
	// the guard starts waiting for the reset boundary.
	defaultQuotaThreshold = 5

	// guardJitterFraction is the maximum proactive over-wait applied on top
	// of the time to the reset boundary, so we never race the server's reset.
	guardJitterFraction = 0.10
)

// rateLimitState is the quota view shared by every call made through one
// Client: remaining points and the absolute reset time. It is created once
// per client, updated under the mutex from every completed response carrying
// quota metadata, and consulted by the guard before every operation.
type rateLimitState struct {
	mu        sync.Mutex
	remaining int
	resetAt   time.Time
	threshold int
}

func newRateLimitState(threshold int) *rateLimitState {
	return &rateLimitState{
		remaining: defaultQuotaMax,
		resetAt:   time.Now(),
		threshold: threshold,
	}
}

// update records quota metadata from a completed response.
func (s *rateLimitState) update(remaining int, resetAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining = remaining
	s.resetAt = resetAt
}

// snapshot returns the current quota view.
func (s *rateLimitState) snapshot() (remaining int, resetAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining, s.resetAt
}

// delay computes how long the next call should hold off before hitting the
// API: zero while quota is above the threshold or once the reset boundary has
// passed, otherwise the time until reset plus jitter in [0, 10%].
func (s *rateLimitState) delay(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remaining > s.threshold {
		return 0
	}
	if !s.resetAt.After(now) {
		return 0
	}

	wait := s.resetAt.Sub(now)
	return wait + time.Duration(rand.Float64()*guardJitterFraction*float64(wait))
}

// wait blocks until the guard delay elapses or the context is canceled.
// A zero delay returns immediately without touching the timer. This is a
// cooperative throttle: it delays the caller's own next call, it does not
// queue or reorder concurrent callers.
func (s *rateLimitState) wait(ctx context.Context) error {
	d := s.delay(time.Now())
	if d <= 0 {
		return nil
	}

	remaining, resetAt := s.snapshot()
	slog.Warn("github quota low, waiting for reset",
		"remaining", remaining,
		"reset_at", resetAt,
		"wait", d.Round(time.Millisecond),
	)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
