// Package timeutil provides day-key helpers for the stats export format and
// period windows. All bucketing is done in UTC so that the same session lands
// in the same dataByDate bucket regardless of the serving host's timezone.
package timeutil

import (
	"time"
)

// DayKeyLayout is the date format used for dataByDate bucket keys.
const DayKeyLayout = "2006-01-02"

// DayKey returns the UTC bucket key for the given time.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}

// ParseDayKey parses a dataByDate bucket key.
func ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(DayKeyLayout, key, time.UTC)
}

// StartOfDay returns 00:00:00 UTC of the given time's day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether both times fall on the same UTC day.
func SameDay(a, b time.Time) bool {
	return DayKey(a) == DayKey(b)
}

// IsToday reports whether the time falls on the current UTC day.
func IsToday(t time.Time) bool {
	return SameDay(t, time.Now())
}

// IsYesterday reports whether the time falls on the previous UTC day.
func IsYesterday(t time.Time) bool {
	return SameDay(t, time.Now().AddDate(0, 0, -1))
}

// DaysAgo returns the start of the UTC day n days before now.
func DaysAgo(n int) time.Time {
	return StartOfDay(time.Now().AddDate(0, 0, -n))
}
