// Package timeline derives training class schedules using business-day
// arithmetic and projects them into display-ready events.
package timeline

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format accepted and produced here.
const DateLayout = "2006-01-02"

// Clock returns the current time. Handlers take one so tests can freeze it.
type Clock func() time.Time

// IsBusinessDay reports whether t falls Monday through Friday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// AddBusinessDays advances d one calendar day at a time, counting only
// weekdays, until n of them have been counted. n <= 0 returns d unchanged.
func AddBusinessDays(d time.Time, n int) time.Time {
	return shift(d, n, 1)
}

// SubtractBusinessDays is the mirror of AddBusinessDays.
func SubtractBusinessDays(d time.Time, n int) time.Time {
	return shift(d, n, -1)
}

func shift(d time.Time, n, step int) time.Time {
	counted := 0
	for counted < n {
		d = d.AddDate(0, 0, step)
		if IsBusinessDay(d) {
			counted++
		}
	}
	return d
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
