// Package gcal reads the club calendar from the Google Calendar API with a
// public API key and converts the wire format into the internal model.
//
// Read methods soft-degrade: an unconfigured client returns empty results
// and no error, so a deployment without credentials still serves an empty
// calendar. Transport or HTTP failures are logged and returned as errors
// alongside an empty result.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"clubcal/internal/dateutil"
	appLog "clubcal/internal/log"
	"clubcal/internal/model"
)

// DefaultMaxResults matches the provider's default page size.
const DefaultMaxResults = 250

// SourceID tags events fetched through this adapter.
const SourceID = "google"

// Options configures a Client.
type Options struct {
	APIKey     string
	CalendarID string
	// Endpoint overrides the API base URL, e.g. "http://127.0.0.1:9999/calendar/v3/".
	Endpoint   string
	MaxResults int
	// Location is the calendar's canonical zone for month/day bounds.
	Location *time.Location
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Client is the event source adapter for Google Calendar.
type Client struct {
	svc        *calendar.Service
	calendarID string
	maxResults int
	loc        *time.Location
	now        func() time.Time
}

// Query narrows an events listing.
type Query struct {
	TimeMin    *time.Time
	TimeMax    *time.Time
	MaxResults int
}

// New builds a Client. A missing API key yields a usable client that
// returns empty results; the returned error is only for construction
// failures of the underlying service.
func New(ctx context.Context, opts Options) (*Client, error) {
	c := &Client{
		calendarID: opts.CalendarID,
		maxResults: opts.MaxResults,
		loc:        opts.Location,
		now:        opts.Now,
	}
	if c.maxResults <= 0 {
		c.maxResults = DefaultMaxResults
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.now == nil {
		c.now = time.Now
	}

	if opts.APIKey == "" {
		appLog.Warn("google calendar api key not configured; calendar will be empty", "calendar_id", opts.CalendarID)
		return c, nil
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcal: create calendar service: %w", err)
	}
	c.svc = svc
	return c, nil
}

// Configured reports whether reads will reach the provider.
func (c *Client) Configured() bool {
	return c != nil && c.svc != nil && c.calendarID != ""
}

// CalendarID returns the default calendar id.
func (c *Client) CalendarID() string {
	return c.calendarID
}

func (c *Client) resolveID(calendarID string) string {
	if calendarID == "" {
		return c.calendarID
	}
	return calendarID
}

// FetchEvents lists events with singleEvents=true and orderBy=startTime,
// so recurring events arrive expanded and in chronological order.
func (c *Client) FetchEvents(ctx context.Context, calendarID string, q Query) ([]model.CalendarEvent, error) {
	calendarID = c.resolveID(calendarID)
	if c.svc == nil || calendarID == "" {
		return []model.CalendarEvent{}, nil
	}

	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	call := c.svc.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(maxResults)).
		Context(ctx)
	if q.TimeMin != nil {
		call = call.TimeMin(q.TimeMin.Format(time.RFC3339))
	}
	if q.TimeMax != nil {
		call = call.TimeMax(q.TimeMax.Format(time.RFC3339))
	}

	started := time.Now()
	resp, err := call.Do()
	if err != nil {
		appLog.Error("google calendar events fetch failed", err, "calendar_id", calendarID, "status", statusOf(err))
		return []model.CalendarEvent{}, fmt.Errorf("fetch events for %s: %w", calendarID, err)
	}

	events := make([]model.CalendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil {
			continue
		}
		events = append(events, convertEvent(item))
	}

	appLog.Debug("google calendar events fetched",
		"calendar_id", calendarID,
		"count", len(events),
		"duration", time.Since(started).Round(time.Millisecond),
	)
	return events, nil
}

// FetchMetadata returns the calendar's identity and the caller's access
// role. It returns nil when the client is not configured.
func (c *Client) FetchMetadata(ctx context.Context, calendarID string) (*model.CalendarMetadata, error) {
	calendarID = c.resolveID(calendarID)
	if c.svc == nil || calendarID == "" {
		return nil, nil
	}

	cal, err := c.svc.Calendars.Get(calendarID).Context(ctx).Do()
	if err != nil {
		appLog.Error("google calendar metadata fetch failed", err, "calendar_id", calendarID, "status", statusOf(err))
		return nil, fmt.Errorf("fetch metadata for %s: %w", calendarID, err)
	}

	meta := &model.CalendarMetadata{
		ID:          cal.Id,
		Summary:     cal.Summary,
		Description: cal.Description,
		TimeZone:    cal.TimeZone,
	}

	// The access role is only reported on event listings.
	probe, err := c.svc.Events.List(calendarID).MaxResults(1).Context(ctx).Do()
	if err != nil {
		appLog.Error("google calendar access role probe failed", err, "calendar_id", calendarID, "status", statusOf(err))
		return meta, nil
	}
	meta.AccessRole = probe.AccessRole
	meta.CanReadEvents = model.CanReadFromRole(probe.AccessRole)
	return meta, nil
}

// EventsForMonth lists events from the first instant of the month to
// 23:59:59 on its last day, in the calendar's zone.
func (c *Client) EventsForMonth(ctx context.Context, calendarID string, year int, month time.Month) ([]model.CalendarEvent, error) {
	timeMin := dateutil.StartOfMonth(year, month, c.loc)
	timeMax := dateutil.EndOfMonth(year, month, c.loc)
	return c.FetchEvents(ctx, calendarID, Query{TimeMin: &timeMin, TimeMax: &timeMax})
}

// EventsForToday lists events for the current day in the calendar's zone.
func (c *Client) EventsForToday(ctx context.Context, calendarID string) ([]model.CalendarEvent, error) {
	now := c.now()
	timeMin := dateutil.StartOfDay(now, c.loc)
	timeMax := dateutil.EndOfDay(now, c.loc)
	return c.FetchEvents(ctx, calendarID, Query{TimeMin: &timeMin, TimeMax: &timeMax})
}

// Source binds the client to one calendar for use as a month event source.
func (c *Client) Source(calendarID string) *Source {
	return &Source{client: c, calendarID: calendarID}
}

// Source adapts a Client to the controller's month-based interface.
type Source struct {
	client     *Client
	calendarID string
}

// EventsForMonth implements calendar.EventSource.
func (s *Source) EventsForMonth(ctx context.Context, year int, month time.Month) ([]model.CalendarEvent, error) {
	return s.client.EventsForMonth(ctx, s.calendarID, year, month)
}

func convertEvent(item *calendar.Event) model.CalendarEvent {
	ev := model.CalendarEvent{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      model.Status(item.Status),
		HTMLLink:    item.HtmlLink,
		SourceID:    SourceID,
	}
	if ev.Status == "" {
		ev.Status = model.StatusConfirmed
	}
	if item.Start != nil {
		ev.Start = model.EventDateTime{DateTime: item.Start.DateTime, Date: item.Start.Date, TimeZone: item.Start.TimeZone}
	}
	if item.End != nil {
		ev.End = model.EventDateTime{DateTime: item.End.DateTime, Date: item.End.Date, TimeZone: item.End.TimeZone}
	}
	return ev
}

func statusOf(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
