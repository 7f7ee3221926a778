package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY ARITHMETIC - Calendar days in the location of the instant
// =============================================================================

// StartOfDay returns midnight of t's calendar day, in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// StartOfISOWeek returns the Monday starting t's ISO week.
func StartOfISOWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return StartOfDay(t).AddDate(0, 0, -offset)
}

func EndOfISOWeek(t time.Time) time.Time {
	return StartOfISOWeek(t).AddDate(0, 0, 7).Add(-time.Nanosecond)
}

func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// MinutesBetween returns the whole minutes from a to b (negative when b is before a).
func MinutesBetween(a, b time.Time) int64 {
	return int64(b.Sub(a) / time.Minute)
}

func MinTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// CLOCK TIME - "HH:MM" wall-clock values used by surcharge windows
// =============================================================================

type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses a "15:04" formatted wall-clock time.
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On places the clock time on day's calendar date, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

func (c ClockTime) Before(other ClockTime) bool {
	return c.Hour < other.Hour || (c.Hour == other.Hour && c.Minute < other.Minute)
}

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }
