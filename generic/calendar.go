package generic

import (
	"sync"
	"time"
)

// =============================================================================
// HOLIDAY CALENDAR - Public holidays used by surcharges and proration
// =============================================================================

// Holiday is a public or company holiday.
type Holiday struct {
	ID        string
	CompanyID string // Empty string = global holiday
	Date      time.Time
	Name      string
	Recurring bool // true = same month/day every year
}

// HolidayCalendar provides holiday lookup functionality.
type HolidayCalendar interface {
	// IsHoliday checks if a date is a holiday for the given company.
	IsHoliday(companyID string, date time.Time) bool

	// GetHolidays returns all holidays for a company in a given year.
	GetHolidays(companyID string, year int) []Holiday
}

// FrenchHolidays is the statutory French public-holiday calendar (metropolitan).
// Easter-based holidays are computed per year and memoised.
type FrenchHolidays struct {
	mu    sync.Mutex
	years map[int][]Holiday
}

func NewFrenchHolidays() *FrenchHolidays {
	return &FrenchHolidays{years: make(map[int][]Holiday)}
}

func (f *FrenchHolidays) IsHoliday(_ string, date time.Time) bool {
	for _, h := range f.GetHolidays("", date.Year()) {
		if h.Date.Month() == date.Month() && h.Date.Day() == date.Day() {
			return true
		}
	}
	return false
}

func (f *FrenchHolidays) GetHolidays(_ string, year int) []Holiday {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.years == nil {
		f.years = make(map[int][]Holiday)
	}
	if hs, ok := f.years[year]; ok {
		return hs
	}

	day := func(m time.Month, d int) time.Time { return time.Date(year, m, d, 0, 0, 0, 0, time.UTC) }
	easter := EasterSunday(year)
	hs := []Holiday{
		{Date: day(time.January, 1), Name: "Jour de l'an", Recurring: true},
		{Date: easter.AddDate(0, 0, 1), Name: "Lundi de Pâques"},
		{Date: day(time.May, 1), Name: "Fête du travail", Recurring: true},
		{Date: day(time.May, 8), Name: "Victoire 1945", Recurring: true},
		{Date: easter.AddDate(0, 0, 39), Name: "Ascension"},
		{Date: easter.AddDate(0, 0, 50), Name: "Lundi de Pentecôte"},
		{Date: day(time.July, 14), Name: "Fête nationale", Recurring: true},
		{Date: day(time.August, 15), Name: "Assomption", Recurring: true},
		{Date: day(time.November, 1), Name: "Toussaint", Recurring: true},
		{Date: day(time.November, 11), Name: "Armistice", Recurring: true},
		{Date: day(time.December, 25), Name: "Noël", Recurring: true},
	}
	f.years[year] = hs
	return hs
}

// EasterSunday computes Gregorian Easter Sunday (anonymous computus).
func EasterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// Calendars merges several calendars: a date is a holiday if any of them says so.
type Calendars []HolidayCalendar

func (cs Calendars) IsHoliday(companyID string, date time.Time) bool {
	for _, c := range cs {
		if c != nil && c.IsHoliday(companyID, date) {
			return true
		}
	}
	return false
}

func (cs Calendars) GetHolidays(companyID string, year int) []Holiday {
	var all []Holiday
	for _, c := range cs {
		if c != nil {
			all = append(all, c.GetHolidays(companyID, year)...)
		}
	}
	return all
}

// =============================================================================
// BUSINESS DAYS
// =============================================================================

// IsBusinessDay reports whether t falls on a business day: Monday through
// Saturday. Public holidays on those days still count.
func IsBusinessDay(t time.Time) bool {
	return t.Weekday() != time.Sunday
}

func IsSaturday(t time.Time) bool { return t.Weekday() == time.Saturday }
func IsSunday(t time.Time) bool   { return t.Weekday() == time.Sunday }

// BusinessDaysBetween counts business days in the calendar days spanned by
// [from, to], both ends inclusive. Returns 0 when to is before from.
func BusinessDaysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	count := 0
	last := StartOfDay(to)
	for d := StartOfDay(from); !d.After(last); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			count++
		}
	}
	return count
}

// DayKind classifies a day for display and surcharge purposes.
type DayKind string

const (
	DayWeekday       DayKind = "weekday"
	DaySaturday      DayKind = "saturday"
	DaySunday        DayKind = "sunday"
	DayPublicHoliday DayKind = "public_holiday"
)

// ClassifyDay returns the kind of t; public holidays win over weekdays.
func ClassifyDay(cal HolidayCalendar, companyID string, t time.Time) DayKind {
	if cal != nil && cal.IsHoliday(companyID, t) {
		return DayPublicHoliday
	}
	switch t.Weekday() {
	case time.Saturday:
		return DaySaturday
	case time.Sunday:
		return DaySunday
	default:
		return DayWeekday
	}
}
