package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrValidation wraps all rejected mutation input (malformed dates, times,
// timezones). Callers surface these to their user; the document is unchanged.
var ErrValidation = errors.New("validation")

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)
)

const dateLayout = "2006-01-02"

// ValidDate reports whether s looks like YYYY-MM-DD.
func ValidDate(s string) bool { return datePattern.MatchString(s) }

// ValidTime reports whether s is an HH:mm clock time (00-23:00-59).
func ValidTime(s string) bool { return timePattern.MatchString(s) }

func checkDate(s string) error {
	if !ValidDate(s) {
		return fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, s)
	}
	return nil
}

func checkTime(s string) error {
	if !ValidTime(s) {
		return fmt.Errorf("%w: time %q must be HH:mm", ErrValidation, s)
	}
	return nil
}

// parseClock splits a validated HH:mm string.
func parseClock(s string) (hour, minute int) {
	parts := strings.SplitN(s, ":", 2)
	hour, _ = strconv.Atoi(parts[0])
	minute, _ = strconv.Atoi(parts[1])
	return hour, minute
}

// dayInLocation parses a YYYY-MM-DD date key as midnight in loc.
func dayInLocation(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}
	return t, nil
}

// instantAt combines a calendar day with an HH:mm wall-clock time in loc.
// Using time.Date keeps DST transitions on the intended wall-clock time.
func instantAt(day time.Time, hhmm string, loc *time.Location) time.Time {
	h, m := parseClock(hhmm)
	y, mo, d := day.In(loc).Date()
	return time.Date(y, mo, d, h, m, 0, 0, loc)
}

// isoWeekday returns 1 (Monday) .. 7 (Sunday).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
