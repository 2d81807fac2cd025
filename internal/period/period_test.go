package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func TestWeekStartEveryWeekday(t *testing.T) {
	// 2026-03-06 is a Friday.
	friday := date(2026, time.March, 6, 0, 0)
	cases := []struct {
		name string
		in   time.Time
	}{
		{"friday itself", friday},
		{"saturday", friday.AddDate(0, 0, 1)},
		{"sunday", friday.AddDate(0, 0, 2)},
		{"monday", friday.AddDate(0, 0, 3)},
		{"tuesday", friday.AddDate(0, 0, 4)},
		{"wednesday", friday.AddDate(0, 0, 5)},
		{"thursday", friday.AddDate(0, 0, 6)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, friday, WeekStart(tc.in))
		})
	}
}

func TestWeekBoundary(t *testing.T) {
	// Thursday 23:59:59.999 belongs to the closing week, the following
	// Friday 00:00:00.000 opens a new one exactly seven days later.
	lastInstant := time.Date(2026, time.March, 12, 23, 59, 59, 999_000_000, time.Local)
	nextFriday := date(2026, time.March, 13, 0, 0)

	require.Equal(t, time.Thursday, lastInstant.Weekday())
	require.Equal(t, time.Friday, nextFriday.Weekday())

	assert.Equal(t, date(2026, time.March, 6, 0, 0), WeekStart(lastInstant))
	assert.Equal(t, nextFriday, WeekStart(nextFriday))
	assert.Equal(t, 7*24*time.Hour, WeekStart(nextFriday).Sub(WeekStart(lastInstant)))
	assert.False(t, SameWeek(lastInstant, nextFriday))
}

func TestWeekEnd(t *testing.T) {
	monday := date(2026, time.March, 9, 10, 30)
	end := WeekEnd(monday)
	assert.Equal(t, time.Thursday, end.Weekday())
	assert.Equal(t, 12, end.Day())
	assert.Equal(t, 23, end.Hour())
	assert.True(t, end.After(monday))
	// A timestamp at the very end of Thursday is still inside the window.
	assert.False(t, end.Before(time.Date(2026, time.March, 12, 23, 59, 59, 999_000_000, time.Local)))
}

func TestMonthStart(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		// May 2026 starts on a Friday.
		{"first is friday", date(2026, time.May, 20, 0, 0), date(2026, time.May, 1, 0, 0)},
		// March 2026 starts on a Sunday; first Friday is the 6th.
		{"first is sunday", date(2026, time.March, 2, 0, 0), date(2026, time.March, 6, 0, 0)},
		// A date before the first Friday still maps to that Friday.
		{"before first friday", date(2026, time.March, 1, 8, 0), date(2026, time.March, 6, 0, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MonthStart(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, time.Friday, got.Weekday())
		})
	}
}

func TestMonthLabel(t *testing.T) {
	assert.Equal(t, "2026-03", MonthLabel(date(2026, time.March, 31, 23, 59)))
	assert.Equal(t, "2025-12", MonthLabel(date(2025, time.December, 1, 0, 0)))
}

func TestWeekKey(t *testing.T) {
	assert.Equal(t, "2026-03-06", WeekKey(date(2026, time.March, 11, 14, 0)))
}
