package utils

import "time"

// HourStart truncates a timestamp to the start of its hour.
func HourStart(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

// IsHourAligned reports whether a timestamp sits exactly on an hour boundary.
// Candle open times from the hourly endpoints must satisfy this; anything
// else indicates a malformed or partial bar.
func IsHourAligned(t time.Time) bool {
	return t.Equal(t.Truncate(time.Hour))
}
