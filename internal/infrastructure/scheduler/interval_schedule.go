package scheduler

import (
	"time"
)

// IntervalSchedule runs a job every fixed interval.
type IntervalSchedule struct {
	interval time.Duration

	// immediate makes the first run due right away instead of one
	// interval after registration.
	immediate bool
	fired     bool
}

// Every returns a schedule firing every interval, first run one interval out.
func Every(interval time.Duration) *IntervalSchedule {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IntervalSchedule{interval: interval}
}

// EveryImmediate returns a schedule firing every interval, first run now.
func EveryImmediate(interval time.Duration) *IntervalSchedule {
	s := Every(interval)
	s.immediate = true
	return s
}

// Next implements Schedule.
func (s *IntervalSchedule) Next(now time.Time) time.Time {
	if s.immediate && !s.fired {
		s.fired = true
		return now
	}
	return now.Add(s.interval)
}

// DailyAtSchedule runs a job once a day at the given UTC wall time.
type DailyAtSchedule struct {
	hour   int
	minute int
}

// DailyAt returns a schedule firing daily at hour:minute UTC.
func DailyAt(hour, minute int) *DailyAtSchedule {
	if hour < 0 || hour > 23 {
		hour = 0
	}
	if minute < 0 || minute > 59 {
		minute = 0
	}
	return &DailyAtSchedule{hour: hour, minute: minute}
}

// Next implements Schedule.
func (s *DailyAtSchedule) Next(now time.Time) time.Time {
	u := now.UTC()
	next := time.Date(u.Year(), u.Month(), u.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(u) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
