package utils

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// StartOfDay truncates t to midnight UTC of its UTC calendar day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayBounds returns the half-open UTC interval [midnight, next midnight) containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := StartOfDay(t)
	return start, start.AddDate(0, 0, 1)
}

// ParseDate parses YYYY-MM-DD as a UTC date. An empty string yields the current UTC day.
func ParseDate(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return StartOfDay(now), nil
	}
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", raw)
	}
	return d, nil
}

// ParseMonth parses YYYY-MM and returns the first day of that month in UTC.
// An empty string yields the current month.
func ParseMonth(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		now = now.UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	m, err := time.Parse(MonthLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: use YYYY-MM", raw)
	}
	return m, nil
}
