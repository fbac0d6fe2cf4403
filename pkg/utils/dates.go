package utils

import (
	"time"
)

// ISODate is the calendar date layout used throughout the application.
// Lexicographic order of ISO dates matches chronological order.
const ISODate = "2006-01-02"

// ParseDate parses an ISO calendar date.
func ParseDate(date string) (time.Time, error) {
	return time.Parse(ISODate, date)
}

// FormatDate formats t as an ISO calendar date.
func FormatDate(t time.Time) string {
	return t.Format(ISODate)
}

// ValidDate reports whether date is a well-formed ISO calendar date.
func ValidDate(date string) bool {
	_, err := ParseDate(date)
	return err == nil
}

// WeekStart returns the ISO date of the Sunday that begins the week
// containing date. Returns date unchanged if it does not parse.
func WeekStart(date string) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return FormatDate(t.AddDate(0, 0, -int(t.Weekday())))
}

// MonthKey returns the "YYYY-MM" bucket key for date.
func MonthKey(date string) string {
	if len(date) < 7 {
		return date
	}
	return date[:7]
}

// NextDay returns the ISO date immediately after date.
func NextDay(date string) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return FormatDate(t.AddDate(0, 0, 1))
}

// Today returns the current local date in ISO form.
func Today() string {
	return FormatDate(time.Now())
}
