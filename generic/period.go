package generic

import "time"

// =============================================================================
// PERIOD - The query window every computation is scoped to
// =============================================================================

// Period is a closed time window [Start, End].
// Pay is ALWAYS computed for a period: a calendar month for draft pay, any
// window for final pay, an ISO week for working stats.
type Period struct {
	Start time.Time
	End   time.Time
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Period {
	return Period{Start: StartOfMonth(t), End: EndOfMonth(t)}
}

// WeekOf returns the ISO week containing t.
func WeekOf(t time.Time) Period {
	return Period{Start: StartOfISOWeek(t), End: EndOfISOWeek(t)}
}

// NewPeriod builds a period spanning whole days from start's day to end's day.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: StartOfDay(start), End: EndOfDay(end)}
	if p.End.Before(p.Start) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Overlaps reports whether [start, end] shares at least an instant with p.
func (p Period) Overlaps(start, end time.Time) bool {
	return !end.Before(p.Start) && !start.After(p.End)
}

// Intersect returns the overlap of p and o. ok is false when they are disjoint.
func (p Period) Intersect(o Period) (Period, bool) {
	r := Period{Start: MaxTime(p.Start, o.Start), End: MinTime(p.End, o.End)}
	if r.End.Before(r.Start) {
		return Period{}, false
	}
	return r, true
}

// Clip clamps [start, end] to p.
func (p Period) Clip(start, end time.Time) (time.Time, time.Time) {
	return MaxTime(start, p.Start), MinTime(end, p.End)
}

// Days returns the start of every calendar day in the period.
func (p Period) Days() []time.Time {
	var days []time.Time
	last := StartOfDay(p.End)
	for d := StartOfDay(p.Start); !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// BusinessDays counts business days in the period.
func (p Period) BusinessDays() int { return BusinessDaysBetween(p.Start, p.End) }

// PreviousMonth returns the calendar month before the one p starts in.
func (p Period) PreviousMonth() Period {
	return MonthOf(StartOfMonth(p.Start).AddDate(0, -1, 0))
}

// StartsYear reports whether the period starts in January.
func (p Period) StartsYear() bool { return p.Start.Month() == time.January }

// MonthLabel formats the month the period starts in as "MM-YYYY".
func (p Period) MonthLabel() string { return p.Start.Format("01-2006") }

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}
