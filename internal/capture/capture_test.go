package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	opts, err := Options{URL: "http://127.0.0.1:8080/calendar", OutputPath: "out.png"}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, opts.Width)
	assert.Equal(t, DefaultHeight, opts.Height)
	assert.Equal(t, DefaultTimeout, opts.Timeout)

	opts, err = Options{URL: "u", OutputPath: "o", Width: 800, Height: 600, Timeout: time.Second}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, 800, opts.Width)
	assert.Equal(t, 600, opts.Height)
	assert.Equal(t, time.Second, opts.Timeout)
}

func TestCalendarPNGValidatesBeforeLaunching(t *testing.T) {
	err := CalendarPNG(context.Background(), Options{OutputPath: "out.png"})
	assert.ErrorContains(t, err, "URL is required")

	err = CalendarPNG(context.Background(), Options{URL: "http://127.0.0.1:8080/calendar"})
	assert.ErrorContains(t, err, "OutputPath is required")
}
