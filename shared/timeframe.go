package shared

import (
	"context"
	"fmt"
	"time"
)

const (
	// TimeOfDayLayout is the format layout for parsing wall clock times in a day.
	TimeOfDayLayout = "15:04:05"
	// DateLayout is the format layout for trading days.
	DateLayout = "2006-01-02"
	// IndiaLocation is the default market timezone.
	IndiaLocation = "Asia/Kolkata"
)

// Resolution represents the candle aggregation period.
type Resolution int

const (
	OneMinute Resolution = iota
	FiveMinute
	FifteenMinute
)

// String returns the provider code for the resolution.
func (r Resolution) String() string {
	switch r {
	case OneMinute:
		return "1"
	case FiveMinute:
		return "5"
	case FifteenMinute:
		return "15"
	default:
		return "unknown"
	}
}

// Duration returns the length of a candle period at the resolution.
func (r Resolution) Duration() time.Duration {
	switch r {
	case OneMinute:
		return time.Minute
	case FiveMinute:
		return time.Minute * 5
	case FifteenMinute:
		return time.Minute * 15
	default:
		return 0
	}
}

// ResolutionFromMinutes returns the resolution for the provided candle length in minutes.
func ResolutionFromMinutes(minutes int) (Resolution, error) {
	switch minutes {
	case 1:
		return OneMinute, nil
	case 5:
		return FiveMinute, nil
	case 15:
		return FifteenMinute, nil
	default:
		return 0, fmt.Errorf("unsupported resolution: %d minutes", minutes)
	}
}

// TimeOfDay represents a wall clock time in a day.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses a wall clock time of the form 15:04:05.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	t, err := time.Parse(TimeOfDayLayout, value)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parsing time of day %q: %w", value, err)
	}

	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// On returns the instant of the time of day on the provided day's date in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, t.Second, 0, loc)
}

// Add returns the time of day shifted by the provided duration, wrapping at midnight.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	base := time.Date(2000, time.January, 1, t.Hour, t.Minute, t.Second, 0, time.UTC).Add(d)
	return TimeOfDay{Hour: base.Hour(), Minute: base.Minute(), Second: base.Second()}
}

// Before reports whether t is earlier in the day than other.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.seconds() < other.seconds()
}

// seconds returns the number of seconds since midnight.
func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// String stringifies the time of day.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Sleep blocks for the provided duration or until the context is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
