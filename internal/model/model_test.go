package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAllDayIgnoresViewerZone(t *testing.T) {
	for _, name := range []string{"Pacific/Kiritimati", "UTC", "Pacific/Pago_Pago"} {
		loc, err := time.LoadLocation(name)
		require.NoError(t, err)

		got, err := EventDateTime{Date: "2024-03-10"}.Resolve(loc)
		require.NoError(t, err)
		assert.Equal(t, 2024, got.Year(), name)
		assert.Equal(t, time.March, got.Month(), name)
		assert.Equal(t, 10, got.Day(), name)
	}
}

func TestResolveTimedConvertsIntoZone(t *testing.T) {
	loc, err := time.LoadLocation("America/Phoenix")
	require.NoError(t, err)

	got, err := EventDateTime{DateTime: "2024-03-11T03:30:00Z"}.Resolve(loc)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Day())
	assert.Equal(t, 20, got.Hour())
}

func TestResolveErrors(t *testing.T) {
	_, err := EventDateTime{}.Resolve(time.UTC)
	assert.ErrorIs(t, err, ErrNoStart)

	_, err = EventDateTime{Date: "2024-03-10", DateTime: "2024-03-10T10:00:00Z"}.Resolve(time.UTC)
	assert.ErrorIs(t, err, ErrAmbiguousTime)

	_, err = EventDateTime{DateTime: "tomorrow"}.Resolve(time.UTC)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	ok := CalendarEvent{
		Start: EventDateTime{DateTime: "2024-03-10T18:00:00-07:00"},
		End:   EventDateTime{DateTime: "2024-03-10T20:00:00-07:00"},
	}
	assert.NoError(t, ok.Validate(time.UTC))

	backwards := CalendarEvent{
		Start: EventDateTime{DateTime: "2024-03-10T20:00:00-07:00"},
		End:   EventDateTime{DateTime: "2024-03-10T18:00:00-07:00"},
	}
	assert.ErrorIs(t, backwards.Validate(time.UTC), ErrEndBeforeStart)

	assert.ErrorIs(t, CalendarEvent{}.Validate(time.UTC), ErrNoStart)
}

func TestEndTimeDefaults(t *testing.T) {
	allDay := CalendarEvent{Start: EventDateTime{Date: "2024-02-29"}}
	end, err := allDay.EndTime(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), end)

	timed := CalendarEvent{Start: EventDateTime{DateTime: "2024-02-29T10:00:00Z"}}
	end, err = timed.EndTime(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 29, 10, 0, 0, 0, time.UTC), end)
}

func TestCanReadFromRole(t *testing.T) {
	assert.True(t, CanReadFromRole("reader"))
	assert.True(t, CanReadFromRole("writer"))
	assert.True(t, CanReadFromRole("owner"))
	assert.False(t, CanReadFromRole("freeBusyReader"))
	assert.False(t, CanReadFromRole(""))
}

func TestCalendarDayJSONIncludesHasEvents(t *testing.T) {
	day := CalendarDay{
		Date:           time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC),
		IsCurrentMonth: true,
		Events:         []CalendarEvent{{ID: "hack"}},
	}
	raw, err := json.Marshal(day)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, true, got["hasEvents"])
	assert.Equal(t, true, got["isCurrentMonth"])
	assert.Len(t, got["events"], 1)

	raw, err = json.Marshal(CalendarDay{Events: []CalendarEvent{}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"hasEvents":false`)

	var back CalendarDay
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.False(t, back.HasEvents())
}
