package model

import (
	"time"
)

// WeekdayOf maps a time to the 1..7 encoding.
func WeekdayOf(t time.Time) Weekday {
	return Weekday(int(t.Weekday()) + 1)
}

// PlanWeekdays returns the weekdays that should receive a new weekly
// registration at clock, given the moment now.
//
// An empty weekdays set means every day. Today is dropped when the target
// time has already passed (or is exactly now) so that creating or editing a
// reminder late in the day does not fire it immediately; the weekly trigger
// still picks today up next week. If dropping today would leave nothing to
// register, the undropped set is returned instead.
func PlanWeekdays(clock Clock, weekdays []Weekday, now time.Time) []Weekday {
	candidates := SortWeekdays(weekdays)
	if len(candidates) == 0 {
		candidates = AllWeekdays()
	}

	today := WeekdayOf(now)
	nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()
	passed := clock.Seconds() <= nowSec

	out := make([]Weekday, 0, len(candidates))
	for _, d := range candidates {
		if d == today && passed {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}

// NextOccurrences previews the next count fire times strictly after now, in
// now's location.
func NextOccurrences(clock Clock, weekdays []Weekday, now time.Time, count int) []time.Time {
	if count <= 0 {
		return []time.Time{}
	}
	allowed := make(map[Weekday]bool, 7)
	for _, d := range weekdays {
		allowed[d] = true
	}
	if len(allowed) == 0 {
		for _, d := range AllWeekdays() {
			allowed[d] = true
		}
	}

	out := make([]time.Time, 0, count)
	y, m, d := now.Date()
	probe := time.Date(y, m, d, clock.Hour, clock.Minute, 0, 0, now.Location())
	for len(out) < count {
		if allowed[WeekdayOf(probe)] && probe.After(now) {
			out = append(out, probe)
		}
		probe = withClock(probe.AddDate(0, 0, 1), clock)
	}
	return out
}

func withClock(date time.Time, clock Clock) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, clock.Hour, clock.Minute, 0, 0, date.Location())
}
