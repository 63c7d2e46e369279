// Package markethours decides whether the exchange's regular session is open.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T. Tests move it by assigning T.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

// Predicate reports whether the market is open at a given instant.
type Predicate interface {
	IsOpen(t time.Time) bool
}

// Hours is a weekday session window in the exchange's local time. Both ends
// of the window are inclusive.
type Hours struct {
	Location *time.Location
	Open     [2]int // hour, minute
	Close    [2]int
	Weekdays map[time.Weekday]bool
}

// NYSE returns the US regular session: 09:30–16:00 America/New_York, Monday–Friday.
func NYSE() (*Hours, error) {
	return New("America/New_York", "09:30", "16:00")
}

// New builds Hours for a timezone and "HH:MM" open/close times, trading Monday–Friday.
func New(tz, open, close string) (*Hours, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	o, err := parseHM(open)
	if err != nil {
		return nil, fmt.Errorf("parse open: %w", err)
	}
	c, err := parseHM(close)
	if err != nil {
		return nil, fmt.Errorf("parse close: %w", err)
	}
	if c[0]*60+c[1] <= o[0]*60+o[1] {
		return nil, fmt.Errorf("close %s must be after open %s", close, open)
	}
	return &Hours{
		Location: loc,
		Open:     o,
		Close:    c,
		Weekdays: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		},
	}, nil
}

func parseHM(s string) ([2]int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return [2]int{}, err
	}
	return [2]int{t.Hour(), t.Minute()}, nil
}

// IsOpen reports whether t falls inside the session.
func (h *Hours) IsOpen(t time.Time) bool {
	local := t.In(h.Location)
	if !h.Weekdays[local.Weekday()] {
		return false
	}
	return inRange(local, h.Open, h.Close)
}

func inRange(localNow time.Time, startHM, endHM [2]int) bool {
	start := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), startHM[0], startHM[1], 0, 0, localNow.Location())
	end := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), endHM[0], endHM[1], 0, 0, localNow.Location())
	return !localNow.Before(start) && !localNow.After(end)
}

// Always is a predicate with a fixed answer.
type Always bool

func (a Always) IsOpen(time.Time) bool { return bool(a) }
