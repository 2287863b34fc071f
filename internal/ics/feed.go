package ics

import (
	"context"
	"fmt"
	"time"

	"clubcal/internal/dateutil"
	appLog "clubcal/internal/log"
	"clubcal/internal/model"
)

// Feed is a month event source backed by one ICS subscription.
type Feed struct {
	src     Source
	fetcher *Fetcher
	loc     *time.Location
}

// NewFeed binds a source to a fetcher. loc is the calendar zone used for
// month bounds and for writing timed occurrences.
func NewFeed(src Source, fetcher *Fetcher, loc *time.Location) *Feed {
	if fetcher == nil {
		fetcher = NewFetcher(nil)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Feed{src: src, fetcher: fetcher, loc: loc}
}

// Source returns the feed's configuration.
func (f *Feed) Source() Source {
	return f.src
}

// EventsForMonth fetches the feed and expands it into the month's
// occurrences. Failures are logged and returned with an empty slice.
func (f *Feed) EventsForMonth(ctx context.Context, year int, month time.Month) ([]model.CalendarEvent, error) {
	body, err := f.fetcher.Fetch(ctx, f.src)
	if err != nil {
		appLog.Error("ics feed fetch failed", err, "id", f.src.ID, "url", redactURL(f.src.URL))
		return []model.CalendarEvent{}, err
	}

	parsed, err := Parse(f.src, body)
	if err != nil {
		return []model.CalendarEvent{}, fmt.Errorf("ics: parse %s: %w", f.src.ID, err)
	}

	events, err := Expand(parsed, ExpandConfig{
		Location:   f.loc,
		RangeStart: dateutil.StartOfMonth(year, month, f.loc),
		RangeEnd:   dateutil.EndOfMonth(year, month, f.loc),
	})
	if err != nil {
		return []model.CalendarEvent{}, fmt.Errorf("ics: expand %s: %w", f.src.ID, err)
	}

	appLog.Debug("ics feed month loaded", "id", f.src.ID, "year", year, "month", int(month), "count", len(events))
	return events, nil
}
