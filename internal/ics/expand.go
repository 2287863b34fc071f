package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "clubcal/internal/log"
	"clubcal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 500

	instanceStamp = "20060102T150405Z"
	dateStamp     = "20060102"
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Location is the calendar zone timed occurrences are written in and
	// all-day ranges are evaluated in. If nil, time.Local is used.
	Location *time.Location

	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap against unbounded rules. If
	// zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// Expand turns parsed VEVENTs into single occurrences inside the window,
// the feed equivalent of the provider's singleEvents=true listing. It
// handles plain events, RRULE recurrence, EXDATE removals and
// RECURRENCE-ID overrides. Cancelled occurrences are dropped. The result is
// ordered by start time; ties keep feed order.
func Expand(events []ParsedEvent, cfg ExpandConfig) ([]model.CalendarEvent, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("ics: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID, keeping first-seen order so
	// the output is deterministic.
	var order []string
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	type occurrence struct {
		start time.Time
		event model.CalendarEvent
	}
	var all []occurrence

	for _, uid := range order {
		for _, ev := range baseByUID[uid] {
			starts, hitCap := occurrenceStarts(ev, cfg)
			if hitCap {
				appLog.Warn("ics: truncated occurrences for UID due to cap", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
			}
			for _, s := range starts {
				occ := ev
				occStart := s
				occEnd := s.Add(ev.End.Sub(ev.Start))
				if ev.RawRRule != "" {
					if o, ok := findOverride(overridesByUID[uid], s); ok {
						occ = o
						occStart, occEnd = o.Start, o.End
					}
				}
				if occ.Status == string(model.StatusCancelled) {
					continue
				}
				if !overlaps(occStart, occEnd, cfg, occ.AllDay) {
					continue
				}
				all = append(all, occurrence{
					start: sortKey(occStart, occ.AllDay, cfg.Location),
					event: toModel(occ, s, occStart, occEnd, ev.RawRRule != "", cfg.Location),
				})
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].start.Before(all[j].start) })

	out := make([]model.CalendarEvent, 0, len(all))
	for _, o := range all {
		out = append(out, o.event)
	}
	return out, nil
}

// occurrenceStarts returns the instance start times of ev that may fall in
// the window. Non-recurring events return their single start.
func occurrenceStarts(ev ParsedEvent, cfg ExpandConfig) ([]time.Time, bool) {
	if ev.RawRRule == "" {
		return []time.Time{ev.Start}, false
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event's duration so instances that
	// started before the window but run into it are kept.
	from, to := windowFor(ev.AllDay, cfg)
	from = from.Add(-ev.End.Sub(ev.Start))
	times := set.Between(from.In(ev.Start.Location()), to.In(ev.Start.Location()), true)

	if len(times) > cfg.MaxOccurrencesPerEvent {
		return times[:cfg.MaxOccurrencesPerEvent], true
	}
	return times, false
}

// windowFor expresses the window in the frame the event's times use:
// instants for timed events, civil UTC dates for all-day events.
func windowFor(allDay bool, cfg ExpandConfig) (time.Time, time.Time) {
	if !allDay {
		return cfg.RangeStart, cfg.RangeEnd
	}
	return civil(cfg.RangeStart.In(cfg.Location)), civil(cfg.RangeEnd.In(cfg.Location))
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func overlaps(start, end time.Time, cfg ExpandConfig, allDay bool) bool {
	from, to := windowFor(allDay, cfg)
	if allDay {
		// All-day ends are exclusive dates.
		return start.Before(to.AddDate(0, 0, 1)) && end.After(from)
	}
	if start.After(to) {
		return false
	}
	if end.Equal(start) {
		return !start.Before(from)
	}
	return end.After(from)
}

func findOverride(overrides []ParsedEvent, instanceStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(instanceStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func sortKey(start time.Time, allDay bool, loc *time.Location) time.Time {
	if allDay {
		return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	}
	return start
}

// toModel writes one occurrence in the provider's shape. Recurring
// instances get ids of the form <uid>_<instance start>, like the
// provider's expanded listings.
func toModel(ev ParsedEvent, instance, start, end time.Time, recurring bool, loc *time.Location) model.CalendarEvent {
	out := model.CalendarEvent{
		ID:          ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Status:      model.Status(ev.Status),
		HTMLLink:    ev.URL,
		SourceID:    ev.Source.ID,
	}
	if out.Status == "" {
		out.Status = model.StatusConfirmed
	}

	if ev.AllDay {
		out.Start = model.EventDateTime{Date: start.Format(model.DateLayout)}
		out.End = model.EventDateTime{Date: end.Format(model.DateLayout)}
		if recurring {
			out.ID = ev.UID + "_" + instance.Format(dateStamp)
		}
		return out
	}

	out.Start = model.EventDateTime{DateTime: start.In(loc).Format(time.RFC3339), TimeZone: loc.String()}
	out.End = model.EventDateTime{DateTime: end.In(loc).Format(time.RFC3339), TimeZone: loc.String()}
	if recurring {
		out.ID = ev.UID + "_" + instance.UTC().Format(instanceStamp)
	}
	return out
}
