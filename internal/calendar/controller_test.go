package calendar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubcal/internal/model"
)

var phoenix = mustLoad("America/Phoenix")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func timed(id, start string) model.CalendarEvent {
	return model.CalendarEvent{
		ID:      id,
		Summary: id,
		Status:  model.StatusConfirmed,
		Start:   model.EventDateTime{DateTime: start},
		End:     model.EventDateTime{DateTime: start},
	}
}

// monthSource serves fixed events per month and records requests.
type monthSource struct {
	mu       sync.Mutex
	byMonth  map[time.Month][]model.CalendarEvent
	err      error
	requests []time.Month
}

func (s *monthSource) EventsForMonth(_ context.Context, _ int, month time.Month) ([]model.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, month)
	if s.err != nil {
		return []model.CalendarEvent{}, s.err
	}
	return append([]model.CalendarEvent(nil), s.byMonth[month]...), nil
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestControllerLoad(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, phoenix)
	src := &monthSource{byMonth: map[time.Month][]model.CalendarEvent{
		time.March: {
			timed("past", "2024-03-01T18:00:00-07:00"),
			timed("next", "2024-03-06T18:00:00-07:00"),
			timed("later", "2024-03-12T18:00:00-07:00"),
			timed("last", "2024-03-20T18:00:00-07:00"),
		},
	}}
	c := NewController(src, Options{Location: phoenix, Now: fixedNow(now)})

	before := c.Snapshot()
	assert.Equal(t, PhaseIdle, before.Phase)
	assert.Empty(t, before.Events)
	assert.Len(t, before.Month.Days, model.GridCells)

	require.NoError(t, c.Load(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, PhaseLoaded, snap.Phase)
	assert.False(t, snap.State.IsLoading)
	assert.Empty(t, snap.State.Error)
	assert.Len(t, snap.Events, 4)
	assert.Equal(t, time.March, snap.Month.Month)

	require.Len(t, snap.Upcoming, 2)
	assert.Equal(t, "next", snap.Upcoming[0].ID)
	assert.Equal(t, "later", snap.Upcoming[1].ID)
	assert.True(t, snap.IsUpcoming("next"))
	assert.False(t, snap.IsUpcoming("past"))
}

func TestControllerYearRollover(t *testing.T) {
	src := &monthSource{}
	c := NewController(src, Options{
		Location: phoenix,
		Now:      fixedNow(time.Date(2024, time.December, 15, 12, 0, 0, 0, phoenix)),
	})

	require.NoError(t, c.GoToNextMonth(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, 2025, snap.Month.Year)
	assert.Equal(t, time.January, snap.Month.Month)

	require.NoError(t, c.GoToPreviousMonth(context.Background()))
	require.NoError(t, c.GoToPreviousMonth(context.Background()))
	snap = c.Snapshot()
	assert.Equal(t, 2024, snap.Month.Year)
	assert.Equal(t, time.November, snap.Month.Month)
	assert.Equal(t, []time.Month{time.January, time.December, time.November}, src.requests)
}

func TestControllerGoToToday(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, phoenix)
	c := NewController(&monthSource{}, Options{
		Location: phoenix,
		Now:      fixedNow(now),
		Initial:  time.Date(2023, time.June, 1, 0, 0, 0, 0, phoenix),
	})

	require.NoError(t, c.GoToToday(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, time.March, snap.Month.Month)
	require.NotNil(t, snap.State.SelectedDate)
	assert.Equal(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, phoenix), *snap.State.SelectedDate)

	selected := 0
	for _, d := range snap.Month.Days {
		if d.IsSelected {
			selected++
			assert.True(t, d.IsToday)
		}
	}
	assert.Equal(t, 1, selected)
}

func TestControllerSelectDateDoesNotRefetch(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, phoenix)
	src := &monthSource{byMonth: map[time.Month][]model.CalendarEvent{
		time.March: {timed("meetup", "2024-03-14T18:00:00-07:00")},
	}}
	c := NewController(src, Options{Location: phoenix, Now: fixedNow(now)})
	require.NoError(t, c.Load(context.Background()))

	c.SelectDate(time.Date(2024, time.March, 14, 20, 0, 0, 0, phoenix))
	snap := c.Snapshot()
	assert.Len(t, src.requests, 1)
	events := snap.SelectedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "meetup", events[0].ID)

	c.SelectDate(time.Date(2024, time.March, 15, 0, 0, 0, 0, phoenix))
	assert.Empty(t, c.Snapshot().SelectedEvents())
	assert.Len(t, src.requests, 1)
}

func TestSnapshotSelectedEventsWithoutSelection(t *testing.T) {
	src := &monthSource{byMonth: map[time.Month][]model.CalendarEvent{
		time.March: {timed("meetup", "2024-03-14T18:00:00-07:00")},
	}}
	c := NewController(src, Options{Location: phoenix, Now: fixedNow(time.Date(2024, time.March, 5, 9, 0, 0, 0, phoenix))})
	require.NoError(t, c.Load(context.Background()))
	assert.Nil(t, c.Snapshot().SelectedEvents())
}

func TestControllerOpenEvent(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, phoenix)
	src := &monthSource{byMonth: map[time.Month][]model.CalendarEvent{
		time.March: {timed("meetup", "2024-03-14T18:00:00-07:00")},
	}}
	c := NewController(src, Options{Location: phoenix, Now: fixedNow(now)})
	require.NoError(t, c.Load(context.Background()))

	_, ok := c.OpenEvent("missing")
	assert.False(t, ok)
	assert.Nil(t, c.Snapshot().Active)

	ev, ok := c.OpenEvent("meetup")
	require.True(t, ok)
	assert.Equal(t, "meetup", ev.ID)
	require.NotNil(t, c.Snapshot().Active)
	assert.Len(t, src.requests, 1)
}

func TestControllerErrorKeepsGridUsable(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, phoenix)
	boom := errors.New("upstream 500")
	src := &monthSource{err: boom}
	c := NewController(src, Options{Location: phoenix, Now: fixedNow(now)})

	err := c.Load(context.Background())
	assert.ErrorIs(t, err, boom)

	snap := c.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.False(t, snap.State.IsLoading)
	assert.Contains(t, snap.State.Error, "March 2024")
	assert.Empty(t, snap.Events)
	assert.Len(t, snap.Month.Days, model.GridCells)

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	require.NoError(t, c.Load(context.Background()))
	assert.Empty(t, c.Snapshot().State.Error)
}

// gatedSource blocks the first request until released.
type gatedSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSource) EventsForMonth(_ context.Context, _ int, month time.Month) ([]model.CalendarEvent, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.started)
		<-g.release
		return []model.CalendarEvent{timed("stale", "2024-02-10T18:00:00-07:00")}, nil
	}
	return []model.CalendarEvent{timed("fresh", "2024-03-10T18:00:00-07:00")}, nil
}

func TestControllerDropsSupersededFetch(t *testing.T) {
	src := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	c := NewController(src, Options{
		Location: phoenix,
		Now:      fixedNow(time.Date(2024, time.March, 1, 9, 0, 0, 0, phoenix)),
	})

	done := make(chan error, 1)
	go func() {
		done <- c.GoToMonth(context.Background(), 2024, time.February)
	}()
	<-src.started

	require.NoError(t, c.GoToMonth(context.Background(), 2024, time.March))
	close(src.release)
	require.NoError(t, <-done)

	snap := c.Snapshot()
	assert.Equal(t, time.March, snap.Month.Month)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "fresh", snap.Events[0].ID)
	assert.Equal(t, PhaseLoaded, snap.Phase)
	assert.False(t, snap.State.IsLoading)
	assert.Equal(t, uint64(2), snap.RequestID)
}

func TestControllerCancelsPreviousFetch(t *testing.T) {
	cancelled := make(chan struct{})
	started := make(chan struct{})
	var calls int
	var mu sync.Mutex
	src := SourceFunc(func(ctx context.Context, _ int, _ time.Month) ([]model.CalendarEvent, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return []model.CalendarEvent{}, ctx.Err()
		}
		return []model.CalendarEvent{}, nil
	})
	c := NewController(src, Options{Location: phoenix})

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()
	<-started

	require.NoError(t, c.GoToNextMonth(context.Background()))
	<-cancelled
	assert.NoError(t, <-done, "superseded fetch reports nothing")
	assert.Equal(t, PhaseLoaded, c.Snapshot().Phase)
}

func TestPickUpcoming(t *testing.T) {
	now := time.Date(2024, time.March, 5, 18, 0, 0, 0, phoenix)
	events := []model.CalendarEvent{
		timed("c", "2024-03-20T18:00:00-07:00"),
		timed("a", "2024-03-05T18:00:00-07:00"),
		{ID: "broken"},
		timed("b", "2024-03-07T18:00:00-07:00"),
	}
	cancelled := timed("x", "2024-03-06T18:00:00-07:00")
	cancelled.Status = model.StatusCancelled
	events = append(events, cancelled)

	got := pickUpcoming(events, now, phoenix, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID, "an event starting exactly now counts")
	assert.Equal(t, "b", got[1].ID)

	assert.Empty(t, pickUpcoming(events, now.AddDate(1, 0, 0), phoenix, 2))
}

func TestPickUpcomingIgnoresEventEndingBeforeStart(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, phoenix)
	backwards := timed("backwards", "2024-03-06T10:00:00-07:00")
	backwards.End = model.EventDateTime{DateTime: "2024-03-06T09:00:00-07:00"}
	events := []model.CalendarEvent{backwards, timed("ok", "2024-03-08T18:00:00-07:00")}

	got := pickUpcoming(events, now, phoenix, 2)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
}
