// Package timegrid holds the pure time arithmetic used by slot generation
// and lifecycle checks. All values use the local clock: dates are
// "2006-01-02" strings and clock times are "15:04" strings (24h).
package timegrid

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var (
	ErrBadClock = errors.New("clock time must be HH:MM (24h)")
	ErrBadDate  = errors.New("date must be YYYY-MM-DD")
	ErrBadRange = errors.New("range start must not be after range end")
)

// ParseClock converts an "HH:MM" string to minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock converts minutes since midnight back to "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate parses a "2006-01-02" date in local time.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
	}
	return d, nil
}

// DaysInRange returns every date in the closed range [from, to] as
// "2006-01-02" strings. Errors if either bound is malformed or from > to.
func DaysInRange(from, to string) ([]string, error) {
	start, err := ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(to)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, ErrBadRange
	}

	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}
	return days, nil
}

// DayOfWeek returns 0 (Sunday) through 6 (Saturday) for a date string.
func DayOfWeek(date string) (int, error) {
	d, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	return int(d.Weekday()), nil
}

// SplitNow splits an instant into its date and clock components.
func SplitNow(now time.Time) (date, clock string) {
	return now.Format(DateLayout), now.Format(ClockLayout)
}

// IsAfter reports whether (date, clock) is strictly after the instant now.
// Malformed inputs compare as not-after.
func IsAfter(date, clock string, now time.Time) bool {
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, time.Local)
	if err != nil {
		return false
	}
	return t.After(now)
}

// IsBefore reports whether (date, clock) is strictly before the instant now.
func IsBefore(date, clock string, now time.Time) bool {
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, time.Local)
	if err != nil {
		return false
	}
	return t.Before(now)
}

// SameDate reports whether the date string names the same calendar day as now.
func SameDate(date string, now time.Time) bool {
	return date == now.Format(DateLayout)
}
