// Package links formats provider deep links for subscribing to the club
// calendar and copying single events into a visitor's own calendar.
package links

import (
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"clubcal/internal/model"
	"clubcal/internal/sanitize"
)

const (
	renderURL = "https://calendar.google.com/calendar/render"
	icalURL   = "https://calendar.google.com/calendar/ical/"

	utcStamp  = "20060102T150405Z"
	dateStamp = "20060102"

	// Long descriptions make the link unusable in some browsers.
	maxDetailsLen = 1500
)

// ErrBadDates is returned by ParseDates for malformed values.
var ErrBadDates = errors.New("links: malformed dates parameter")

// SubscriptionURL opens the provider's "add this calendar" screen.
func SubscriptionURL(calendarID string) string {
	return renderURL + "?cid=" + encodeComponent(calendarID)
}

// ICSURL is the public iCalendar feed of the calendar, for clients that
// subscribe by URL.
func ICSURL(calendarID string) string {
	return icalURL + encodeComponent(calendarID) + "/public/basic.ics"
}

// AddToCalendarURL builds the "add single event" template link. Timed
// events are written as UTC instants; all-day events as date pairs with
// the provider's exclusive end date.
func AddToCalendarURL(ev model.CalendarEvent, loc *time.Location) (string, error) {
	dates, err := FormatDates(ev, loc)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(renderURL)
	b.WriteString("?action=TEMPLATE")
	b.WriteString("&text=")
	b.WriteString(encodeComponent(ev.Summary))
	b.WriteString("&dates=")
	b.WriteString(encodeComponent(dates))
	if details := sanitize.PlainText(ev.Description); details != "" {
		if utf8.RuneCountInString(details) > maxDetailsLen {
			details = truncateRunes(details, maxDetailsLen) + "…"
		}
		b.WriteString("&details=")
		b.WriteString(encodeComponent(details))
	}
	if ev.Location != "" {
		b.WriteString("&location=")
		b.WriteString(encodeComponent(ev.Location))
	}
	return b.String(), nil
}

// FormatDates renders the start/end pair in the template link's format.
func FormatDates(ev model.CalendarEvent, loc *time.Location) (string, error) {
	start, err := ev.StartTime(loc)
	if err != nil {
		return "", err
	}
	end, err := ev.EndTime(loc)
	if err != nil {
		return "", err
	}
	if ev.IsAllDay() {
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		return start.Format(dateStamp) + "/" + end.Format(dateStamp), nil
	}
	return start.UTC().Format(utcStamp) + "/" + end.UTC().Format(utcStamp), nil
}

// ParseDates is the inverse of FormatDates. All-day values come back as
// midnight UTC civil dates.
func ParseDates(v string) (start, end time.Time, allDay bool, err error) {
	parts := strings.Split(v, "/")
	if len(parts) != 2 || len(parts[0]) != len(parts[1]) {
		return time.Time{}, time.Time{}, false, ErrBadDates
	}
	layout := utcStamp
	if len(parts[0]) == len(dateStamp) {
		layout = dateStamp
		allDay = true
	}
	if start, err = time.Parse(layout, parts[0]); err != nil {
		return time.Time{}, time.Time{}, false, errors.Join(ErrBadDates, err)
	}
	if end, err = time.Parse(layout, parts[1]); err != nil {
		return time.Time{}, time.Time{}, false, errors.Join(ErrBadDates, err)
	}
	return start, end, allDay, nil
}

// encodeComponent percent-encodes s for a query value, spaces as %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
