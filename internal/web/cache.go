package web

import (
	"context"
	"sync"
	"time"

	"clubcal/internal/calendar"
	appLog "clubcal/internal/log"
	"clubcal/internal/model"
)

// monthKey identifies one cached month.
type monthKey struct {
	year  int
	month time.Month
}

// monthEntry holds a fetched month and its timestamp.
type monthEntry struct {
	events    []model.CalendarEvent
	updatedAt time.Time
}

// MonthCache is an in-memory cache in front of an event source. It avoids
// hitting the provider on every page view; a month is reused for ttl after
// a successful fetch. Failed or partial fetches are never stored, so the
// next request retries.
type MonthCache struct {
	src calendar.EventSource
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[monthKey]monthEntry
}

// NewMonthCache wraps src. A non-positive ttl disables caching.
func NewMonthCache(src calendar.EventSource, ttl time.Duration) *MonthCache {
	return &MonthCache{
		src:     src,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[monthKey]monthEntry),
	}
}

// EventsForMonth implements calendar.EventSource.
func (c *MonthCache) EventsForMonth(ctx context.Context, year int, month time.Month) ([]model.CalendarEvent, error) {
	key := monthKey{year: year, month: month}

	// Fast path: return cached value if it's still fresh.
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.fresh(entry) {
		return append([]model.CalendarEvent(nil), entry.events...), nil
	}

	return c.fetch(ctx, key)
}

// Warm refetches a month regardless of freshness.
func (c *MonthCache) Warm(ctx context.Context, year int, month time.Month) error {
	_, err := c.fetch(ctx, monthKey{year: year, month: month})
	return err
}

// Purge drops expired entries and reports how many were removed.
func (c *MonthCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if !c.fresh(entry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of cached months.
func (c *MonthCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MonthCache) fresh(entry monthEntry) bool {
	return c.ttl > 0 && c.now().Sub(entry.updatedAt) < c.ttl
}

func (c *MonthCache) fetch(ctx context.Context, key monthKey) ([]model.CalendarEvent, error) {
	events, err := c.src.EventsForMonth(ctx, key.year, key.month)
	if err != nil {
		return events, err
	}
	if c.ttl <= 0 {
		return events, nil
	}

	c.mu.Lock()
	c.entries[key] = monthEntry{
		events:    append([]model.CalendarEvent(nil), events...),
		updatedAt: c.now(),
	}
	c.mu.Unlock()
	appLog.Debug("month cache stored", "year", key.year, "month", int(key.month), "count", len(events))
	return events, nil
}
