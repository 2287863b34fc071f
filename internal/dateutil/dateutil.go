// Package dateutil holds the calendar's day-of-month math. Everything here
// is pure; callers normalize values into the calendar's zone first.
package dateutil

import "time"

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

var (
	dayNames      = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	shortDayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
)

// DaysInMonth returns the last day of month using day 0 of the next month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekdayOfMonth returns the weekday of the 1st.
func FirstWeekdayOfMonth(year int, month time.Month) time.Weekday {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
}

// IsSameDay compares year, month and day components only. Time of day and
// the values' locations are not consulted.
func IsSameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsToday reports whether t falls on the same day as now, in now's zone.
func IsToday(t, now time.Time) bool {
	return IsSameDay(t.In(now.Location()), now)
}

// MonthName returns the English month name.
func MonthName(month time.Month) string {
	if month < time.January || month > time.December {
		return ""
	}
	return monthNames[month-1]
}

// DayNames returns Sunday-first weekday names.
func DayNames(abbreviated bool) [7]string {
	if abbreviated {
		return shortDayNames
	}
	return dayNames
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay is 23:59:59 of t's day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).Add(24*time.Hour - time.Second)
}

// StartOfMonth is the first instant of the month in loc.
func StartOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, loc)
}

// EndOfMonth is 23:59:59 on the last day of the month in loc.
func EndOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	return time.Date(year, month, DaysInMonth(year, month), 23, 59, 59, 0, loc)
}

// AddMonths moves t by n months and pins the result to day 1, so that
// January 31 plus one month is February rather than early March.
func AddMonths(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, t.Location())
}
