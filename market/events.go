package market

import (
	"math"
	"sort"
	"time"
)

// EventCalendar holds scheduled market events (central-bank meetings,
// index rebalances, earnings) around which new entries are blacked out.
type EventCalendar struct {
	events []time.Time
	window int // calendar days either side
}

func NewEventCalendar(dates []time.Time, windowDays int) *EventCalendar {
	ev := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		ev = append(ev, truncateDay(d))
	}
	sort.Slice(ev, func(i, j int) bool { return ev[i].Before(ev[j]) })
	return &EventCalendar{events: ev, window: windowDays}
}

// InBlackout reports whether t falls within the blackout window of any event.
func (c *EventCalendar) InBlackout(t time.Time) bool {
	if c == nil {
		return false
	}
	day := truncateDay(t)
	for _, e := range c.events {
		d := int(math.Round(day.Sub(e).Hours() / 24))
		if d < 0 {
			d = -d
		}
		if d <= c.window {
			return true
		}
	}
	return false
}

// Next returns the first event on or after t.
func (c *EventCalendar) Next(t time.Time) (time.Time, bool) {
	if c == nil {
		return time.Time{}, false
	}
	day := truncateDay(t)
	for _, e := range c.events {
		if !e.Before(day) {
			return e, true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
