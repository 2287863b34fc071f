package ics

import (
	"errors"
	"io"
	"net/url"
	"time"

	goical "github.com/emersion/go-ical"

	appLog "clubcal/internal/log"
	"clubcal/internal/model"
	"clubcal/internal/sanitize"
)

const productID = "-//clubcal//Club Calendar//EN"

// ErrNoEvents is returned when nothing exportable was given; an empty
// VCALENDAR is not a valid document.
var ErrNoEvents = errors.New("ics: no exportable events")

// WriteEvent encodes a single event as a VCALENDAR, for the "download
// .ics" button that Apple and Outlook users rely on.
func WriteEvent(w io.Writer, ev model.CalendarEvent, loc *time.Location) error {
	return WriteCalendar(w, "", []model.CalendarEvent{ev}, loc)
}

// WriteCalendar encodes events as one VCALENDAR. Events whose times do not
// resolve, or that end before they start, are skipped.
func WriteCalendar(w io.Writer, name string, events []model.CalendarEvent, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	cal := goical.NewCalendar()
	cal.Props.SetText(goical.PropVersion, "2.0")
	cal.Props.SetText(goical.PropProductID, productID)
	if name != "" {
		// Clients expect the bare extension form, without VALUE=TEXT.
		calName := goical.NewProp("X-WR-CALNAME")
		calName.SetText(name)
		calName.Params.Del(goical.ParamValue)
		cal.Props.Set(calName)
	}

	stamp := time.Now().UTC()
	written := 0
	for _, ev := range events {
		vevent, err := toVEvent(ev, loc, stamp)
		if err != nil {
			appLog.Debug("ics: skipping event on export", "id", ev.ID, "reason", err.Error())
			continue
		}
		cal.Children = append(cal.Children, vevent.Component)
		written++
	}
	if written == 0 {
		return ErrNoEvents
	}

	return goical.NewEncoder(w).Encode(cal)
}

func toVEvent(ev model.CalendarEvent, loc *time.Location, stamp time.Time) (*goical.Event, error) {
	if err := ev.Validate(loc); err != nil {
		return nil, err
	}
	start, err := ev.StartTime(loc)
	if err != nil {
		return nil, err
	}
	end, err := ev.EndTime(loc)
	if err != nil {
		return nil, err
	}

	vevent := goical.NewEvent()
	uid := ev.ID
	if uid == "" {
		uid = start.UTC().Format(instanceStamp) + "@clubcal"
	}
	vevent.Props.SetText(goical.PropUID, uid)
	vevent.Props.SetDateTime(goical.PropDateTimeStamp, stamp)

	if ev.IsAllDay() {
		vevent.Props.SetDate(goical.PropDateTimeStart, start)
		if end.After(start) {
			vevent.Props.SetDate(goical.PropDateTimeEnd, end)
		}
	} else {
		vevent.Props.SetDateTime(goical.PropDateTimeStart, start.UTC())
		vevent.Props.SetDateTime(goical.PropDateTimeEnd, end.UTC())
	}

	vevent.Props.SetText(goical.PropSummary, ev.Summary)
	if desc := sanitize.PlainText(ev.Description); desc != "" {
		vevent.Props.SetText(goical.PropDescription, desc)
	}
	if ev.Location != "" {
		vevent.Props.SetText(goical.PropLocation, ev.Location)
	}
	if ev.Status == model.StatusTentative {
		vevent.Props.SetText(goical.PropStatus, "TENTATIVE")
	}
	if ev.HTMLLink != "" {
		if u, err := url.Parse(ev.HTMLLink); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			vevent.Props.SetURI(goical.PropURL, u)
		}
	}
	return vevent, nil
}
