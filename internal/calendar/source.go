// Package calendar owns the month view's state: which month is shown,
// which day is selected, the loaded events and the load status.
package calendar

import (
	"context"
	"errors"
	"sort"
	"time"

	"clubcal/internal/model"
)

// EventSource yields the events of one month, in chronological order.
type EventSource interface {
	EventsForMonth(ctx context.Context, year int, month time.Month) ([]model.CalendarEvent, error)
}

// SourceFunc adapts a function to EventSource.
type SourceFunc func(ctx context.Context, year int, month time.Month) ([]model.CalendarEvent, error)

func (f SourceFunc) EventsForMonth(ctx context.Context, year int, month time.Month) ([]model.CalendarEvent, error) {
	return f(ctx, year, month)
}

// Merge combines several sources into one. Results are concatenated in
// source order and stable-sorted by start, so each source's own order
// survives among equal starts. A failing source does not hide the others:
// its error is joined into the returned error next to whatever the rest
// produced.
func Merge(loc *time.Location, sources ...EventSource) EventSource {
	if len(sources) == 1 {
		return sources[0]
	}
	if loc == nil {
		loc = time.Local
	}
	return SourceFunc(func(ctx context.Context, year int, month time.Month) ([]model.CalendarEvent, error) {
		var (
			all  []model.CalendarEvent
			errs []error
		)
		for _, src := range sources {
			events, err := src.EventsForMonth(ctx, year, month)
			if err != nil {
				errs = append(errs, err)
			}
			all = append(all, events...)
		}
		sortByStart(all, loc)
		if all == nil {
			all = []model.CalendarEvent{}
		}
		return all, errors.Join(errs...)
	})
}

// sortByStart orders events by resolved start. Unresolvable events sort
// last and keep their relative order.
func sortByStart(events []model.CalendarEvent, loc *time.Location) {
	keys := make(map[int]time.Time, len(events))
	idx := make([]int, len(events))
	for i := range events {
		idx[i] = i
		if start, err := events[i].StartTime(loc); err == nil {
			keys[i] = start
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, okA := keys[idx[a]]
		kb, okB := keys[idx[b]]
		switch {
		case okA && okB:
			return ka.Before(kb)
		case okA:
			return true
		default:
			return false
		}
	})
	sorted := make([]model.CalendarEvent, len(events))
	for i, j := range idx {
		sorted[i] = events[j]
	}
	copy(events, sorted)
}
