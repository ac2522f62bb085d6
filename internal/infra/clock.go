package infra

import "time"

// EventClock provides time in the event's reference timezone. The calendar
// day it yields is the one the daily-stamp gate and inactivity counters are
// defined against.
type EventClock struct {
	loc *time.Location
	now func() time.Time
}

// NewEventClock creates a clock pinned to the given location.
func NewEventClock(loc *time.Location) *EventClock {
	return &EventClock{loc: loc, now: time.Now}
}

// NewFixedClock creates a clock that always reports the given instant.
// Test helper.
func NewFixedClock(t time.Time) *EventClock {
	return &EventClock{loc: t.Location(), now: func() time.Time { return t }}
}

// Now returns the current time in the event timezone.
func (c *EventClock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns midnight of the current calendar day in the event timezone.
func (c *EventClock) Today() time.Time {
	n := c.Now()
	y, m, d := n.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// Location returns the event timezone.
func (c *EventClock) Location() *time.Location {
	return c.loc
}
