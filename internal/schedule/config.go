// Package schedule holds the tariff schedule table: sixteen lines keyed by
// season and day category, the settings that drive them, the editor
// operations that change them and their fixed-width string encoding.
package schedule

import (
	"fmt"
	"time"

	"github.com/bher20/tarifmanager/internal/calendar"
	"github.com/bher20/tarifmanager/internal/tariff"
)

// WindowID names one of the four windows of a line.
type WindowID string

const (
	OffPeak1 WindowID = "hc1"
	OffPeak2 WindowID = "hc2"
	OffPeak3 WindowID = "hc3"
	Super    WindowID = "hsc"
)

// Duration bounds per window: the primary off-peak duration is stored on
// four digits (up to 24h00), the others on three (up to 9h59).
const (
	maxPrimaryDuration = tariff.MinutesPerDay
	maxShortDuration   = 9*60 + 59
	maxStart           = tariff.MinutesPerDay - 1
)

func (w WindowID) valid() bool {
	switch w {
	case OffPeak1, OffPeak2, OffPeak3, Super:
		return true
	}
	return false
}

func (w WindowID) maxDuration() int {
	if w == OffPeak1 {
		return maxPrimaryDuration
	}
	return maxShortDuration
}

// Window is a start time (minutes since midnight) and a duration in minutes.
// A zero duration means the window is inactive.
type Window struct {
	Start    int `json:"start"`
	Duration int `json:"duration"`
}

// clamped pulls out-of-range values back to the nearest bound so interval
// derivation stays total over corrupted data.
func (w Window) clamped(maxDuration int) Window {
	w.Start = min(max(w.Start, 0), maxStart)
	w.Duration = min(max(w.Duration, 0), maxDuration)
	return w
}

// Line is one row of the schedule table.
type Line struct {
	Slots        int       `json:"slots"`
	SuperOffPeak bool      `json:"super_off_peak"`
	OffPeak      [3]Window `json:"off_peak"`
	Super        Window    `json:"super"`
}

func (l *Line) window(id WindowID) *Window {
	switch id {
	case OffPeak1:
		return &l.OffPeak[0]
	case OffPeak2:
		return &l.OffPeak[1]
	case OffPeak3:
		return &l.OffPeak[2]
	case Super:
		return &l.Super
	}
	return nil
}

// Config is the whole schedule: the 2x8 line table plus the settings the
// editor manages. It is a plain value; copying it copies every line.
type Config struct {
	Lines [calendar.NumSeasons][calendar.NumDays]Line `json:"lines"`

	DaySpecific bool                   `json:"day_specific"`
	DayMask     [calendar.NumDays]bool `json:"day_mask"`

	Seasonal     bool `json:"seasonal"`
	SlotsDefault int  `json:"slots_default"`
	SlotsWinter  int  `json:"slots_winter"`
	SlotsSummer  int  `json:"slots_summer"`
	SuperDefault bool `json:"super_default"`
	SuperWinter  bool `json:"super_winter"`
	SuperSummer  bool `json:"super_summer"`
}

// New returns an empty schedule: every line zeroed with one slot, no
// seasonality and no day-specific override.
func New() Config {
	c := Config{SlotsDefault: 1, SlotsWinter: 1, SlotsSummer: 1}
	for s := range c.Lines {
		for d := range c.Lines[s] {
			c.Lines[s][d].Slots = 1
		}
	}
	return c
}

// LineAt returns the line by its flat index 0..15 (season*8 + day).
func (c Config) LineAt(index int) Line {
	return c.Lines[index/calendar.NumDays][index%calendar.NumDays]
}

// EffectiveSlotCount returns the number of off-peak windows used for lines
// of the given half: the shared count when unseasonal, else the per-season
// count.
func (c Config) EffectiveSlotCount(season calendar.Season) int {
	if !c.Seasonal {
		return c.SlotsDefault
	}
	if season == calendar.Summer {
		return c.SlotsSummer
	}
	return c.SlotsWinter
}

// SlotCountForLine is EffectiveSlotCount for the flat line index 0..15.
func (c Config) SlotCountForLine(index int) int {
	return c.EffectiveSlotCount(calendar.Season(index / calendar.NumDays))
}

// Validate reports the first value of c that Encode would have to clamp,
// wrapped in ErrInvalidOp.
func (c Config) Validate() error {
	for _, n := range []int{c.SlotsDefault, c.SlotsWinter, c.SlotsSummer} {
		if n < 1 || n > 3 {
			return fmt.Errorf("%w: slot count %d", ErrInvalidOp, n)
		}
	}
	for s := range c.Lines {
		for d := range c.Lines[s] {
			l := c.Lines[s][d]
			if l.Slots < 1 || l.Slots > 3 {
				return fmt.Errorf("%w: line %d slots %d", ErrInvalidOp, s*calendar.NumDays+d, l.Slots)
			}
			for _, id := range []WindowID{OffPeak1, OffPeak2, OffPeak3, Super} {
				w := *l.window(id)
				if w.clamped(id.maxDuration()) != w {
					return fmt.Errorf("%w: line %d window %s start=%d duration=%d",
						ErrInvalidOp, s*calendar.NumDays+d, id, w.Start, w.Duration)
				}
			}
		}
	}
	return nil
}

// IsDaySpecific reports whether day is forced to a full day of off-peak.
func (c Config) IsDaySpecific(day calendar.Day) bool {
	return c.DaySpecific && day.Valid() && c.DayMask[day]
}

// HasSuperOffPeak reports whether any line carries a super-off-peak window.
func (c Config) HasSuperOffPeak() bool {
	for s := range c.Lines {
		for d := range c.Lines[s] {
			if c.Lines[s][d].SuperOffPeak {
				return true
			}
		}
	}
	return false
}

// IntervalsForDay derives the tariff intervals of day from the winter (or
// no-season) half of the table.
func (c Config) IntervalsForDay(day calendar.Day) []tariff.Interval {
	return c.IntervalsFor(calendar.Winter, day)
}

// IntervalsFor derives the tariff intervals of day from the given half. The
// order is off-peak 1, 2, 3 then super-off-peak; NextChange relies on it to
// break ties.
func (c Config) IntervalsFor(season calendar.Season, day calendar.Day) []tariff.Interval {
	if !day.Valid() {
		return nil
	}
	if c.IsDaySpecific(day) {
		return []tariff.Interval{{Start: 0, Duration: tariff.MinutesPerDay, Kind: tariff.OffPeak}}
	}
	if season != calendar.Summer {
		season = calendar.Winter
	}

	line := c.Lines[season][day]
	slots := c.EffectiveSlotCount(season)

	var out []tariff.Interval
	for i, id := range []WindowID{OffPeak1, OffPeak2, OffPeak3} {
		if i >= slots {
			break
		}
		w := line.window(id).clamped(id.maxDuration())
		if w.Duration > 0 {
			out = append(out, tariff.Interval{Start: w.Start, Duration: w.Duration, Kind: tariff.OffPeak})
		}
	}
	if line.SuperOffPeak {
		w := line.Super.clamped(Super.maxDuration())
		if w.Duration > 0 {
			out = append(out, tariff.Interval{Start: w.Start, Duration: w.Duration, Kind: tariff.SuperOffPeak})
		}
	}
	return out
}

// SeasonFor returns the half of the table that applies on date.
func (c Config) SeasonFor(date time.Time) calendar.Season {
	if !c.Seasonal {
		return calendar.Winter
	}
	return calendar.SeasonOf(date)
}

// IntervalsForDate classifies date and derives its intervals from the half
// that applies on it.
func (c Config) IntervalsForDate(date time.Time) (calendar.Day, calendar.Season, []tariff.Interval) {
	day := calendar.Classify(date)
	season := c.SeasonFor(date)
	return day, season, c.IntervalsFor(season, day)
}
