// Package timezone handles the calendar dates the back office stores as "2006-01-02"
// strings (hire dates, contract terms, history events) and the location they are read in.
package timezone

import (
	"time"

	"github.com/pkg/errors"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// UTC is the default location.
var UTC = time.UTC

// ParseTimezone parses an IANA timezone identifier (e.g., "Europe/Paris").
// If the timezone is invalid, returns UTC and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return UTC, errors.Wrapf(err, "invalid timezone %q", tz)
	}
	return loc, nil
}

// ParseDate reads a calendar date as midnight in tz. An empty string is the zero time.
func ParseDate(s string, tz *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if tz == nil {
		tz = UTC
	}
	t, err := time.ParseInLocation(DateLayout, s, tz)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders t as a calendar date in tz.
func FormatDate(t time.Time, tz *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if tz == nil {
		tz = UTC
	}
	return t.In(tz).Format(DateLayout)
}

// StartOfDay returns the start of the day (00:00:00) in the given timezone.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	t = t.In(tz)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, tz)
}

// DaysUntil counts calendar days from the day of now to date, negative when date is past.
func DaysUntil(date, now time.Time, tz *time.Location) int {
	from := StartOfDay(now, tz)
	to := StartOfDay(date, tz)
	// Whole days; rounding absorbs DST shifts.
	return int(to.Sub(from).Round(24*time.Hour) / (24 * time.Hour))
}
