// Package clock provides a time-of-day value for schedules that repeat daily.
// Schedules carry no date, so differences between two times are wrap-aware:
// a later time that reads earlier on the clock is assumed to be on the next day.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the length of one schedule day.
const MinutesPerDay = 24 * 60

// ErrInvalidTime is returned when a string is not a HH:MM time of day.
var ErrInvalidTime = errors.New("invalid time of day")

// TimeOfDay is a wall-clock time with minute precision.
// The zero value is invalid; use Parse or New.
type TimeOfDay struct {
	minutes int
	valid   bool
}

// New returns the time of day for the given hour and minute.
func New(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidTime, hour, minute)
	}
	return TimeOfDay{minutes: hour*60 + minute, valid: true}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) TimeOfDay {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Parse reads a HH:MM (or H:MM, or HH:MM:SS) time of day.
// Anything after the first space is ignored, so "18:00 (+2)" parses as 18:00.
func Parse(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return TimeOfDay{}, fmt.Errorf("%w: empty", ErrInvalidTime)
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	return New(hour, minute)
}

// IsValid reports whether t holds a parsed time.
func (t TimeOfDay) IsValid() bool {
	return t.valid
}

// Minutes returns minutes since midnight, or -1 for an invalid time.
func (t TimeOfDay) Minutes() int {
	if !t.valid {
		return -1
	}
	return t.minutes
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int {
	return t.minutes / 60
}

// Before orders valid times by clock reading. Invalid times sort after every valid time.
func (t TimeOfDay) Before(u TimeOfDay) bool {
	switch {
	case !t.valid:
		return false
	case !u.valid:
		return true
	default:
		return t.minutes < u.minutes
	}
}

// Until returns the minutes from t forward to u, wrapping past midnight when
// u reads earlier than t. The result is in [0, MinutesPerDay). It returns
// false when either time is invalid.
func (t TimeOfDay) Until(u TimeOfDay) (int, bool) {
	if !t.valid || !u.valid {
		return 0, false
	}
	diff := u.minutes - t.minutes
	if diff < 0 {
		diff += MinutesPerDay
	}
	return diff, true
}

// String formats t as HH:MM, or "" when invalid.
func (t TimeOfDay) String() string {
	if !t.valid {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", t.minutes/60, t.minutes%60)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields an invalid time.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = TimeOfDay{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
