package engine

import (
	"context"
	"time"

	"github.com/dnldd/breakout/shared"
)

// Scheduler computes waits until wall clock times of day in a fixed location.
type Scheduler struct {
	loc   *time.Location
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler initializes a new scheduler. A nil now or sleep defaults to the
// system clock and a timer backed sleep.
func NewScheduler(loc *time.Location, now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = shared.Sleep
	}

	return &Scheduler{loc: loc, now: now, sleep: sleep}
}

// Next returns the next instant at the provided wall clock time. If today's instant
// is not strictly in the future it rolls forward exactly one calendar day.
func (s *Scheduler) Next(hour int, minute int, second int) time.Time {
	now := s.now().In(s.loc)
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, second, 0, s.loc)
	if !target.After(now) {
		target = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, second, 0, s.loc)
	}

	return target
}

// Until returns the duration until the next instant at the provided wall clock time.
func (s *Scheduler) Until(hour int, minute int, second int) time.Duration {
	return s.Next(hour, minute, second).Sub(s.now())
}

// Wait blocks until the provided instant or until the context is cancelled.
func (s *Scheduler) Wait(ctx context.Context, target time.Time) (time.Duration, error) {
	d := target.Sub(s.now())
	if d < 0 {
		d = 0
	}

	return d, s.sleep(ctx, d)
}

// WaitUntil blocks until the next instant at the provided wall clock time, returning
// early only when the context is cancelled.
func (s *Scheduler) WaitUntil(ctx context.Context, hour int, minute int, second int) (time.Duration, error) {
	return s.Wait(ctx, s.Next(hour, minute, second))
}
