package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"clubcal/internal/dateutil"
	"clubcal/internal/grid"
	appLog "clubcal/internal/log"
	"clubcal/internal/model"
)

// Phase is the controller's load status.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseLoaded  Phase = "loaded"
	PhaseError   Phase = "error"
)

// DefaultUpcoming is how many soonest future events are highlighted.
const DefaultUpcoming = 2

// Options configures a Controller.
type Options struct {
	Location *time.Location
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
	// Upcoming is the number of highlighted future events.
	Upcoming int
	// Initial anchors the shown month. Zero means now.
	Initial time.Time
	// Selected preselects a day.
	Selected *time.Time
}

// Snapshot is an immutable copy of everything the view renders.
type Snapshot struct {
	State    model.CalendarState
	Phase    Phase
	Month    model.CalendarMonth
	Events   []model.CalendarEvent
	Upcoming []model.CalendarEvent
	// Active is the event whose detail view is open, if any.
	Active *model.CalendarEvent
	// RequestID identifies the load that produced Events.
	RequestID uint64

	loc *time.Location
}

// IsUpcoming reports whether id is one of the highlighted events.
func (s Snapshot) IsUpcoming(id string) bool {
	for _, ev := range s.Upcoming {
		if ev.ID == id {
			return true
		}
	}
	return false
}

// SelectedEvents lists the loaded events of the selected day, or nil
// when no day is selected.
func (s Snapshot) SelectedEvents() []model.CalendarEvent {
	if s.State.SelectedDate == nil {
		return nil
	}
	return grid.EventsOn(s.Events, *s.State.SelectedDate, s.loc)
}

// Controller owns CalendarState. Navigation refetches the visible month;
// selection and opening an event never do. Each fetch carries a monotonic
// request id and its own cancelable context; starting a new fetch cancels
// the previous one, and a result whose id is no longer the latest is
// dropped, so an older response can never overwrite a newer month.
type Controller struct {
	src      EventSource
	loc      *time.Location
	now      func() time.Time
	upcoming int

	mu       sync.Mutex
	state    model.CalendarState
	phase    Phase
	events   []model.CalendarEvent
	featured []model.CalendarEvent
	active   *model.CalendarEvent
	seq      uint64
	loadedID uint64
	cancel   context.CancelFunc
}

// NewController builds an idle controller anchored at opts.Initial.
func NewController(src EventSource, opts Options) *Controller {
	c := &Controller{
		src:      src,
		loc:      opts.Location,
		now:      opts.Now,
		upcoming: opts.Upcoming,
		phase:    PhaseIdle,
		events:   []model.CalendarEvent{},
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.upcoming <= 0 {
		c.upcoming = DefaultUpcoming
	}

	anchor := opts.Initial
	if anchor.IsZero() {
		anchor = c.now()
	}
	c.state = model.CalendarState{
		CurrentDate: dateutil.StartOfDay(anchor, c.loc),
		View:        model.ViewMonth,
	}
	if opts.Selected != nil {
		sel := dateutil.StartOfDay(*opts.Selected, c.loc)
		c.state.SelectedDate = &sel
	}
	return c
}

// Location returns the calendar zone.
func (c *Controller) Location() *time.Location {
	return c.loc
}

// Load fetches the current month. It is what mounting the view does.
func (c *Controller) Load(ctx context.Context) error {
	return c.refetch(ctx)
}

// GoToPreviousMonth shows the previous month and refetches.
func (c *Controller) GoToPreviousMonth(ctx context.Context) error {
	c.mu.Lock()
	c.state.CurrentDate = dateutil.AddMonths(c.state.CurrentDate, -1)
	c.mu.Unlock()
	return c.refetch(ctx)
}

// GoToNextMonth shows the next month and refetches. December rolls over
// into January of the next year.
func (c *Controller) GoToNextMonth(ctx context.Context) error {
	c.mu.Lock()
	c.state.CurrentDate = dateutil.AddMonths(c.state.CurrentDate, 1)
	c.mu.Unlock()
	return c.refetch(ctx)
}

// GoToMonth jumps to an arbitrary month and refetches.
func (c *Controller) GoToMonth(ctx context.Context, year int, month time.Month) error {
	c.mu.Lock()
	c.state.CurrentDate = dateutil.StartOfMonth(year, month, c.loc)
	c.mu.Unlock()
	return c.refetch(ctx)
}

// GoToToday shows and selects today, then refetches.
func (c *Controller) GoToToday(ctx context.Context) error {
	today := dateutil.StartOfDay(c.now(), c.loc)
	c.mu.Lock()
	c.state.CurrentDate = today
	c.state.SelectedDate = &today
	c.mu.Unlock()
	return c.refetch(ctx)
}

// SelectDate changes the highlighted day only.
func (c *Controller) SelectDate(date time.Time) {
	sel := dateutil.StartOfDay(date, c.loc)
	c.mu.Lock()
	c.state.SelectedDate = &sel
	c.mu.Unlock()
}

// OpenEvent makes the loaded event with id the detail target.
func (c *Controller) OpenEvent(id string) (model.CalendarEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.ID == id {
			ev := ev
			c.active = &ev
			return ev, true
		}
	}
	return model.CalendarEvent{}, false
}

// Snapshot returns the current state and the grid derived from it.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	state := c.state
	if state.SelectedDate != nil {
		sel := *state.SelectedDate
		state.SelectedDate = &sel
	}
	events := make([]model.CalendarEvent, len(c.events))
	copy(events, c.events)
	featured := make([]model.CalendarEvent, len(c.featured))
	copy(featured, c.featured)
	var active *model.CalendarEvent
	if c.active != nil {
		a := *c.active
		active = &a
	}
	phase := c.phase
	loadedID := c.loadedID
	c.mu.Unlock()

	month := grid.BuildMonth(grid.Input{
		Year:     state.CurrentDate.Year(),
		Month:    state.CurrentDate.Month(),
		Selected: state.SelectedDate,
		Events:   events,
		Now:      c.now(),
		Location: c.loc,
	})

	return Snapshot{
		State:     state,
		Phase:     phase,
		Month:     month,
		Events:    events,
		Upcoming:  featured,
		Active:    active,
		RequestID: loadedID,
		loc:       c.loc,
	}
}

func (c *Controller) refetch(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	id := c.seq
	c.cancel = cancel
	c.phase = PhaseLoading
	c.state.IsLoading = true
	c.state.Error = ""
	year, month := c.state.CurrentDate.Year(), c.state.CurrentDate.Month()
	c.mu.Unlock()

	events, err := c.src.EventsForMonth(ctx, year, month)

	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.seq {
		appLog.Debug("calendar: dropping superseded fetch", "request_id", id, "latest", c.seq, "year", year, "month", int(month))
		return nil
	}
	c.cancel = nil
	c.state.IsLoading = false

	if events == nil {
		events = []model.CalendarEvent{}
	}
	if err != nil {
		c.phase = PhaseError
		c.state.Error = describe(err, year, month)
		// Partial results (e.g. one of several feeds failed) still render.
		c.events = events
		c.featured = pickUpcoming(events, c.now(), c.loc, c.upcoming)
		c.loadedID = id
		return err
	}

	c.phase = PhaseLoaded
	c.events = events
	c.featured = pickUpcoming(events, c.now(), c.loc, c.upcoming)
	c.loadedID = id
	if c.active != nil && !containsID(events, c.active.ID) {
		c.active = nil
	}
	return nil
}

func describe(err error, year int, month time.Month) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Loading %s %d timed out. Try again in a moment.", dateutil.MonthName(month), year)
	}
	return fmt.Sprintf("Couldn't load events for %s %d. Try again in a moment.", dateutil.MonthName(month), year)
}

// pickUpcoming returns the n earliest events starting at or after now.
// Events that fail Validate are ignored.
func pickUpcoming(events []model.CalendarEvent, now time.Time, loc *time.Location, n int) []model.CalendarEvent {
	type candidate struct {
		start time.Time
		event model.CalendarEvent
	}
	var future []candidate
	for _, ev := range events {
		if ev.Status == model.StatusCancelled {
			continue
		}
		if err := ev.Validate(loc); err != nil {
			appLog.Debug("calendar: ignoring invalid event", "id", ev.ID, "reason", err.Error())
			continue
		}
		start, _ := ev.StartTime(loc)
		if !start.Before(now) {
			future = append(future, candidate{start: start, event: ev})
		}
	}
	sort.SliceStable(future, func(i, j int) bool { return future[i].start.Before(future[j].start) })
	if len(future) > n {
		future = future[:n]
	}
	out := make([]model.CalendarEvent, 0, len(future))
	for _, f := range future {
		out = append(out, f.event)
	}
	return out
}

func containsID(events []model.CalendarEvent, id string) bool {
	for _, ev := range events {
		if ev.ID == id {
			return true
		}
	}
	return false
}
