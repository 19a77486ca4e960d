package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// MonthIndex returns the 1-based month of t.
func MonthIndex(t time.Time) int {
	return int(t.Month())
}

// WeekdayIndex returns the 0-based weekday of t (Sunday = 0).
func WeekdayIndex(t time.Time) int {
	return int(t.Weekday())
}

// AddPeriods advances t by n periods of the given calendar step. Supported
// steps are "day", "week", and "month"; anything else falls back to days.
func AddPeriods(t time.Time, step string, n int) time.Time {
	switch step {
	case "month":
		return t.AddDate(0, n, 0)
	case "week":
		return t.AddDate(0, 0, 7*n)
	default:
		return t.AddDate(0, 0, n)
	}
}
