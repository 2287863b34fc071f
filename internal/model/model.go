package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the provider's all-day date format.
const DateLayout = "2006-01-02"

var (
	// ErrNoStart marks events that carry neither dateTime nor date.
	ErrNoStart = errors.New("event has neither dateTime nor date")
	// ErrAmbiguousTime marks an EventDateTime that sets both fields.
	ErrAmbiguousTime = errors.New("event time has both dateTime and date")
	// ErrEndBeforeStart marks events whose end resolves before their start.
	ErrEndBeforeStart = errors.New("event ends before it starts")
)

// Status is the provider's event status.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusTentative Status = "tentative"
	StatusCancelled Status = "cancelled"
)

// EventDateTime is either a timed instant (DateTime, RFC3339 with offset)
// or an all-day civil date (Date, YYYY-MM-DD). Exactly one must be set.
type EventDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// IsAllDay reports whether only the date component is present.
func (t EventDateTime) IsAllDay() bool {
	return t.DateTime == "" && t.Date != ""
}

// Resolve returns the instant in loc. All-day dates are read as civil dates
// at midnight in loc and are never shifted by a zone conversion.
func (t EventDateTime) Resolve(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	switch {
	case t.DateTime != "" && t.Date != "":
		return time.Time{}, ErrAmbiguousTime
	case t.DateTime != "":
		ts, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse dateTime %q: %w", t.DateTime, err)
		}
		return ts.In(loc), nil
	case t.Date != "":
		d, err := time.ParseInLocation(DateLayout, t.Date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse date %q: %w", t.Date, err)
		}
		return d, nil
	default:
		return time.Time{}, ErrNoStart
	}
}

// CalendarEvent is one occurrence on the external calendar. Events are
// built fresh on every fetch and treated as immutable afterwards.
type CalendarEvent struct {
	ID          string        `json:"id"`
	Summary     string        `json:"summary"`
	Description string        `json:"description,omitempty"`
	Start       EventDateTime `json:"start"`
	End         EventDateTime `json:"end"`
	Location    string        `json:"location,omitempty"`
	Status      Status        `json:"status"`
	HTMLLink    string        `json:"htmlLink,omitempty"`
	// SourceID names the feed the event came from ("google" or an ICS id).
	SourceID string `json:"sourceId,omitempty"`
}

// IsAllDay reports whether the event has a start date but no start time.
func (e CalendarEvent) IsAllDay() bool {
	return e.Start.IsAllDay()
}

// StartTime resolves the start in loc.
func (e CalendarEvent) StartTime(loc *time.Location) (time.Time, error) {
	return e.Start.Resolve(loc)
}

// EndTime resolves the end in loc. A missing end falls back to the start
// (timed) or the following day (all-day, matching the provider's exclusive
// end date).
func (e CalendarEvent) EndTime(loc *time.Location) (time.Time, error) {
	if e.End.DateTime == "" && e.End.Date == "" {
		start, err := e.StartTime(loc)
		if err != nil {
			return time.Time{}, err
		}
		if e.IsAllDay() {
			return start.AddDate(0, 0, 1), nil
		}
		return start, nil
	}
	return e.End.Resolve(loc)
}

// Validate checks the exactly-one-of rule and start <= end.
func (e CalendarEvent) Validate(loc *time.Location) error {
	start, err := e.StartTime(loc)
	if err != nil {
		return err
	}
	end, err := e.EndTime(loc)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return ErrEndBeforeStart
	}
	return nil
}

// CalendarMetadata describes the calendar itself.
type CalendarMetadata struct {
	ID            string `json:"id"`
	Summary       string `json:"summary"`
	Description   string `json:"description,omitempty"`
	TimeZone      string `json:"timeZone,omitempty"`
	AccessRole    string `json:"accessRole"`
	CanReadEvents bool   `json:"canReadEvents"`
}

// CanReadFromRole reports whether an access role exposes event details.
// freeBusyReader (and anything unknown) only sees busy blocks.
func CanReadFromRole(role string) bool {
	switch role {
	case "reader", "writer", "owner":
		return true
	default:
		return false
	}
}

// CalendarDay is one grid cell.
type CalendarDay struct {
	Date           time.Time       `json:"date"`
	IsCurrentMonth bool            `json:"isCurrentMonth"`
	IsToday        bool            `json:"isToday"`
	IsSelected     bool            `json:"isSelected"`
	Events         []CalendarEvent `json:"events"`
}

// HasEvents is derived from Events.
func (d CalendarDay) HasEvents() bool {
	return len(d.Events) > 0
}

// MarshalJSON adds the derived hasEvents flag.
func (d CalendarDay) MarshalJSON() ([]byte, error) {
	type day CalendarDay
	return json.Marshal(struct {
		day
		HasEvents bool `json:"hasEvents"`
	}{day: day(d), HasEvents: d.HasEvents()})
}

// GridCells is the fixed number of cells in a month grid (6 weeks).
const GridCells = 42

// CalendarMonth is the full Sunday-first grid.
type CalendarMonth struct {
	Year           int           `json:"year"`
	Month          time.Month    `json:"month"`
	Days           []CalendarDay `json:"days"`
	FirstDayOfWeek time.Weekday  `json:"firstDayOfWeek"`
	DaysInMonth    int           `json:"daysInMonth"`
}

// View is the calendar view mode. Only month is implemented.
type View string

const (
	ViewMonth View = "month"
	ViewWeek  View = "week"
	ViewDay   View = "day"
)

// CalendarState is the controller-owned session state.
type CalendarState struct {
	CurrentDate  time.Time  `json:"currentDate"`
	SelectedDate *time.Time `json:"selectedDate"`
	View         View       `json:"view"`
	IsLoading    bool       `json:"isLoading"`
	Error        string     `json:"error,omitempty"`
}
