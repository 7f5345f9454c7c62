package tariff

import (
	"fmt"
	"sort"
)

// Interval is a discounted window of a day. Start is minutes since midnight
// (0..1439); Start+Duration may run past midnight.
type Interval struct {
	Start    int    `json:"start"`
	Duration int    `json:"duration"`
	Kind     Status `json:"kind"`
}

// End returns the end minute folded into the day.
func (iv Interval) End() int {
	return (iv.Start + iv.Duration) % MinutesPerDay
}

// Wraps reports whether the interval crosses midnight.
func (iv Interval) Wraps() bool {
	return iv.Start+iv.Duration > MinutesPerDay
}

// Contains reports whether minute falls inside the interval, following it
// past midnight when it wraps.
func (iv Interval) Contains(minute int) bool {
	if !iv.Wraps() {
		return minute >= iv.Start && minute < iv.Start+iv.Duration
	}
	return minute >= iv.Start || minute < iv.End()
}

// CurrentStatus returns the tier in force at minute. SuperOffPeak beats
// OffPeak beats Peak whatever the order of intervals.
func CurrentStatus(intervals []Interval, minute int) Status {
	status := Peak
	for _, iv := range intervals {
		if !iv.Contains(minute) {
			continue
		}
		switch {
		case iv.Kind == SuperOffPeak:
			status = SuperOffPeak
		case iv.Kind == OffPeak && status != SuperOffPeak:
			status = OffPeak
		}
	}
	return status
}

// Change is the next boundary after a given minute. At may exceed 1439
// when the boundary falls on the following day.
type Change struct {
	At int    `json:"at"`
	To Status `json:"to"`
}

// Tomorrow reports whether the change happens on the next day.
func (c Change) Tomorrow() bool { return c.At >= MinutesPerDay }

type event struct {
	time  int
	start bool
	kind  Status
}

func (e event) status() Status {
	if e.start {
		return e.kind
	}
	return Peak
}

// NextChange finds the first interval boundary strictly after minute. If
// every boundary is at or before minute the first boundary of the next day
// is returned. ok is false when there are no intervals.
func NextChange(intervals []Interval, minute int) (Change, bool) {
	if len(intervals) == 0 {
		return Change{}, false
	}
	events := make([]event, 0, 2*len(intervals))
	for _, iv := range intervals {
		events = append(events,
			event{time: iv.Start, start: true, kind: iv.Kind},
			event{time: iv.End(), start: false, kind: iv.Kind},
		)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].time < events[j].time })

	for _, e := range events {
		if e.time > minute {
			return Change{At: e.time, To: e.status()}, true
		}
	}
	first := events[0]
	return Change{At: first.time + MinutesPerDay, To: first.status()}, true
}

// MinutesUntil returns the wait from minute to c, in 1..1440. A boundary
// exactly one day away counts as 1440, not 0.
func MinutesUntil(c Change, minute int) int {
	d := (c.At - minute - 1) % MinutesPerDay
	if d < 0 {
		d += MinutesPerDay
	}
	return d + 1
}

// FormatMinutes renders a duration the way the widget does: "45min", "2h",
// "1h05".
func FormatMinutes(m int) string {
	h, min := m/60, m%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dmin", min)
	case min == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh%02d", h, min)
	}
}

// FormatClock renders minutes since midnight as HH:MM, folding into the day.
func FormatClock(m int) string {
	m = ((m % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
