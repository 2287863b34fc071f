// Package grid builds the fixed six-week month view.
package grid

import (
	"time"

	"clubcal/internal/dateutil"
	appLog "clubcal/internal/log"
	"clubcal/internal/model"
)

// Input is everything BuildMonth depends on. Now and Location are explicit
// so the result is a pure function of its input.
type Input struct {
	Year     int
	Month    time.Month
	Selected *time.Time
	Events   []model.CalendarEvent
	Now      time.Time
	Location *time.Location
}

// BuildMonth produces the 42-cell Sunday-first grid: leading days of the
// previous month, every day of the target month, then trailing days of the
// next month. The grid is always six weeks so the layout height stays
// constant between months.
//
// Each cell carries the events whose resolved start date falls on it, in
// the order they appear in in.Events. Events that cannot be resolved, or
// that end before they start, are left out.
func BuildMonth(in Input) model.CalendarMonth {
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}

	firstWeekday := dateutil.FirstWeekdayOfMonth(in.Year, in.Month)
	totalDays := dateutil.DaysInMonth(in.Year, in.Month)

	dated := resolveAll(in.Events, loc)

	days := make([]model.CalendarDay, 0, model.GridCells)

	prevYear, prevMonth := in.Year, in.Month-1
	if prevMonth < time.January {
		prevYear, prevMonth = in.Year-1, time.December
	}
	prevDays := dateutil.DaysInMonth(prevYear, prevMonth)
	for i := int(firstWeekday) - 1; i >= 0; i-- {
		d := time.Date(prevYear, prevMonth, prevDays-i, 0, 0, 0, 0, loc)
		days = append(days, makeDay(d, false, in, dated, loc))
	}

	for day := 1; day <= totalDays; day++ {
		d := time.Date(in.Year, in.Month, day, 0, 0, 0, 0, loc)
		days = append(days, makeDay(d, true, in, dated, loc))
	}

	nextYear, nextMonth := in.Year, in.Month+1
	if nextMonth > time.December {
		nextYear, nextMonth = in.Year+1, time.January
	}
	for day := 1; len(days) < model.GridCells; day++ {
		d := time.Date(nextYear, nextMonth, day, 0, 0, 0, 0, loc)
		days = append(days, makeDay(d, false, in, dated, loc))
	}

	return model.CalendarMonth{
		Year:           in.Year,
		Month:          in.Month,
		Days:           days,
		FirstDayOfWeek: firstWeekday,
		DaysInMonth:    totalDays,
	}
}

type datedEvent struct {
	event model.CalendarEvent
	on    time.Time
}

func resolveAll(events []model.CalendarEvent, loc *time.Location) []datedEvent {
	out := make([]datedEvent, 0, len(events))
	for _, ev := range events {
		if err := ev.Validate(loc); err != nil {
			appLog.Debug("grid: skipping invalid event", "id", ev.ID, "summary", ev.Summary, "reason", err.Error())
			continue
		}
		start, _ := ev.StartTime(loc)
		out = append(out, datedEvent{event: ev, on: start})
	}
	return out
}

func makeDay(d time.Time, current bool, in Input, dated []datedEvent, loc *time.Location) model.CalendarDay {
	day := model.CalendarDay{
		Date:           d,
		IsCurrentMonth: current,
		Events:         []model.CalendarEvent{},
	}
	if !in.Now.IsZero() {
		day.IsToday = dateutil.IsSameDay(d, in.Now.In(loc))
	}
	if in.Selected != nil {
		day.IsSelected = dateutil.IsSameDay(d, in.Selected.In(loc))
	}
	for _, de := range dated {
		if dateutil.IsSameDay(de.on, d) {
			day.Events = append(day.Events, de.event)
		}
	}
	return day
}

// EventsOn returns the events resolved onto the same day as date.
func EventsOn(events []model.CalendarEvent, date time.Time, loc *time.Location) []model.CalendarEvent {
	if loc == nil {
		loc = time.Local
	}
	date = date.In(loc)
	out := make([]model.CalendarEvent, 0)
	for _, de := range resolveAll(events, loc) {
		if dateutil.IsSameDay(de.on, date) {
			out = append(out, de.event)
		}
	}
	return out
}
