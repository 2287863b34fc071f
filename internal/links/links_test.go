package links

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubcal/internal/model"
)

func TestAddToCalendarURL_TimedRoundTrip(t *testing.T) {
	ev := model.CalendarEvent{
		ID:          "abc",
		Summary:     "Hack Night & Pizza",
		Description: "<p>Bring a <b>laptop</b></p>",
		Location:    "Brickyard 210, Tempe",
		Start:       model.EventDateTime{DateTime: "2024-03-10T18:00:00-07:00"},
		End:         model.EventDateTime{DateTime: "2024-03-10T21:30:45-07:00"},
	}

	raw, err := AddToCalendarURL(ev, time.UTC)
	require.NoError(t, err)
	assert.NotContains(t, raw, "+")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "TEMPLATE", q.Get("action"))
	assert.Equal(t, "Hack Night & Pizza", q.Get("text"))
	assert.Equal(t, "Bring a laptop", q.Get("details"))
	assert.Equal(t, "Brickyard 210, Tempe", q.Get("location"))

	start, end, allDay, err := ParseDates(q.Get("dates"))
	require.NoError(t, err)
	assert.False(t, allDay)

	wantStart, _ := ev.StartTime(time.UTC)
	wantEnd, _ := ev.EndTime(time.UTC)
	assert.True(t, wantStart.Equal(start), "start %s vs %s", wantStart, start)
	assert.True(t, wantEnd.Equal(end), "end %s vs %s", wantEnd, end)
}

func TestAddToCalendarURL_AllDay(t *testing.T) {
	ev := model.CalendarEvent{
		Summary: "Spring Break",
		Start:   model.EventDateTime{Date: "2024-03-10"},
		End:     model.EventDateTime{Date: "2024-03-17"},
	}
	loc, err := time.LoadLocation("Pacific/Kiritimati")
	require.NoError(t, err)

	raw, err := AddToCalendarURL(ev, loc)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "20240310/20240317", u.Query().Get("dates"))
	assert.Empty(t, u.Query().Get("details"))

	start, end, allDay, err := ParseDates(u.Query().Get("dates"))
	require.NoError(t, err)
	assert.True(t, allDay)
	assert.Equal(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, time.March, 17, 0, 0, 0, 0, time.UTC), end)
}

func TestAddToCalendarURL_MalformedEvent(t *testing.T) {
	_, err := AddToCalendarURL(model.CalendarEvent{Summary: "no times"}, time.UTC)
	assert.ErrorIs(t, err, model.ErrNoStart)
}

func TestAddToCalendarURL_TruncatesDetails(t *testing.T) {
	ev := model.CalendarEvent{
		Summary:     "Long",
		Description: strings.Repeat("é", 3000),
		Start:       model.EventDateTime{Date: "2024-03-10"},
	}
	raw, err := AddToCalendarURL(ev, time.UTC)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, maxDetailsLen+1, len([]rune(u.Query().Get("details"))))
	assert.Equal(t, "20240310/20240311", u.Query().Get("dates"))
}

func TestAddToCalendarURL_KeepsDetailsUnderLimit(t *testing.T) {
	desc := strings.Repeat("é", 800)
	ev := model.CalendarEvent{
		Summary:     "Accents",
		Description: desc,
		Start:       model.EventDateTime{Date: "2024-03-10"},
	}
	raw, err := AddToCalendarURL(ev, time.UTC)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	details := u.Query().Get("details")
	assert.Equal(t, desc, details)
	assert.NotContains(t, details, "…")
}

func TestParseDatesRejectsGarbage(t *testing.T) {
	for _, v := range []string{"", "20240310", "20240310/2024031", "2024031x/20240311", "20240310T000000Z/20240311"} {
		_, _, _, err := ParseDates(v)
		assert.ErrorIs(t, err, ErrBadDates, v)
	}
}

func TestSubscriptionLinks(t *testing.T) {
	id := "c_abc123@group.calendar.google.com"
	assert.Equal(t, "https://calendar.google.com/calendar/render?cid=c_abc123%40group.calendar.google.com", SubscriptionURL(id))
	assert.Equal(t, "https://calendar.google.com/calendar/ical/c_abc123%40group.calendar.google.com/public/basic.ics", ICSURL(id))
}
