// Package period implements the school calendar arithmetic used by the
// ledger. A school week runs Friday 00:00:00 through Thursday 23:59:59.999
// and a school month starts on the first Friday of the calendar month. All
// computations use local wall-clock time so that a record issued just before
// midnight lands in the same week for the issuing teacher and the server.
package period

import (
	"fmt"
	"time"
)

// WeekStart returns the most recent Friday at 00:00:00 local time, counting
// t itself when t falls on a Friday.
func WeekStart(t time.Time) time.Time {
	daysBack := (int(t.Weekday()) + 2) % 7
	d := t.AddDate(0, 0, -daysBack)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

// WeekEnd returns the Thursday ending the school week containing t, at the
// last representable instant of the day.
func WeekEnd(t time.Time) time.Time {
	start := WeekStart(t)
	end := start.AddDate(0, 0, 6)
	return time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// MonthStart returns the first Friday on or after the first calendar day of
// t's month, at 00:00:00 local time.
func MonthStart(t time.Time) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	daysForward := (int(time.Friday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, daysForward)
}

// MonthLabel renders the label stamped onto reward rows, e.g. "2026-03".
func MonthLabel(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// WeekKey renders the week-start date used as the weekly quota key.
func WeekKey(t time.Time) string {
	return WeekStart(t).Format("2006-01-02")
}

// SameWeek reports whether a and b fall into the same school week.
func SameWeek(a, b time.Time) bool {
	return WeekStart(a).Equal(WeekStart(b))
}
