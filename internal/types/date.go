package types

import (
	"time"
)

// AddClampedDate adds years and months to t and clamps the day to the last
// valid day of the target month, so Jan 31 + 1 month is Feb 28 (or 29)
// instead of rolling into March. Days are added afterwards with normal
// calendar arithmetic.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := int(m) + months

	// normalise month into 1..12, carrying into the year
	newY += (newM - 1) / 12
	newM = (newM-1)%12 + 1
	if newM < 1 {
		newM += 12
		newY--
	}

	lastDay := LastDayOfMonth(newY, time.Month(newM), t.Location())
	if d > lastDay {
		d = lastDay
	}

	result := time.Date(newY, time.Month(newM), d, h, min, sec, t.Nanosecond(), t.Location())
	if days != 0 {
		result = result.AddDate(0, 0, days)
	}
	return result
}

// LastDayOfMonth returns the number of days in the given month
func LastDayOfMonth(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// StartOfDay truncates t to midnight in its own location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
