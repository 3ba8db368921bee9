// Package workday answers whether a given date counts as a working day.
// The scheduler consults it before non-override runs only; manual overrides
// fire regardless.
package workday

import (
	"fmt"
	"time"
)

// Oracle decides whether a date is a working day.
type Oracle interface {
	IsWorkday(t time.Time) bool
}

const dateLayout = "2006-01-02"

// Calendar is a local oracle: ISO weekdays 1-5 are workdays, minus
// configured holidays, plus configured extra workdays. Extra workdays win
// over holidays.
type Calendar struct {
	holidays map[string]bool
	extra    map[string]bool
}

func NewCalendar(holidays, extraWorkdays []string) (*Calendar, error) {
	c := &Calendar{
		holidays: make(map[string]bool, len(holidays)),
		extra:    make(map[string]bool, len(extraWorkdays)),
	}
	for _, d := range holidays {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("workday: invalid holiday %q: %w", d, err)
		}
		c.holidays[d] = true
	}
	for _, d := range extraWorkdays {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("workday: invalid extra workday %q: %w", d, err)
		}
		c.extra[d] = true
	}
	return c, nil
}

func (c *Calendar) IsWorkday(t time.Time) bool {
	key := t.Format(dateLayout)
	if c.extra[key] {
		return true
	}
	if c.holidays[key] {
		return false
	}
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
