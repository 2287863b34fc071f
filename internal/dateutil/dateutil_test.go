package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysInMonth(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2024, time.February, 29},
		{2023, time.February, 28},
		{1900, time.February, 28},
		{2000, time.February, 29},
		{2024, time.April, 30},
		{2024, time.December, 31},
		{2025, time.January, 31},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DaysInMonth(tt.year, tt.month), "%d-%02d", tt.year, tt.month)
	}
}

func TestFirstWeekdayOfMonth(t *testing.T) {
	assert.Equal(t, time.Thursday, FirstWeekdayOfMonth(2024, time.February))
	assert.Equal(t, time.Sunday, FirstWeekdayOfMonth(2015, time.February))
	assert.Equal(t, time.Wednesday, FirstWeekdayOfMonth(2025, time.January))
}

func TestIsSameDay(t *testing.T) {
	a := time.Date(2024, time.March, 10, 0, 0, 1, 0, time.UTC)
	b := time.Date(2024, time.March, 10, 23, 59, 0, 0, time.UTC)
	c := time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)

	assert.True(t, IsSameDay(a, b))
	assert.False(t, IsSameDay(b, c))
	assert.False(t, IsSameDay(a, a.AddDate(1, 0, 0)))
}

func TestIsToday(t *testing.T) {
	loc, err := time.LoadLocation("America/Phoenix")
	require.NoError(t, err)
	now := time.Date(2024, time.March, 10, 22, 0, 0, 0, loc)

	// 04:00 UTC on the 11th is still the 10th in Phoenix.
	assert.True(t, IsToday(time.Date(2024, time.March, 11, 4, 0, 0, 0, time.UTC), now))
	assert.False(t, IsToday(time.Date(2024, time.March, 11, 8, 0, 0, 0, time.UTC), now))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "February", MonthName(time.February))
	assert.Equal(t, "", MonthName(time.Month(13)))
	assert.Equal(t, "Sun", DayNames(true)[0])
	assert.Equal(t, "Saturday", DayNames(false)[6])
}

func TestMonthBounds(t *testing.T) {
	start := StartOfMonth(2024, time.February, time.UTC)
	end := EndOfMonth(2024, time.February, time.UTC)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC), end)

	day := time.Date(2024, time.March, 10, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.March, 10, 23, 59, 59, 0, time.UTC), EndOfDay(day, time.UTC))
}

func TestAddMonths(t *testing.T) {
	jan31 := time.Date(2024, time.January, 31, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), AddMonths(jan31, 1))

	dec := time.Date(2024, time.December, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), AddMonths(dec, 1))
	assert.Equal(t, time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC), AddMonths(dec, -1))
}
