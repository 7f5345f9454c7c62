package rates

import (
	"time"

	"github.com/bher20/tarifmanager/internal/calendar"
	"github.com/bher20/tarifmanager/internal/schedule"
	"github.com/bher20/tarifmanager/internal/tariff"
)

// Compute evaluates cfg at the wall-clock instant at. A live reading
// replaces the displayed status but never the next change, which always
// follows the schedule.
func Compute(key string, cfg schedule.Config, at time.Time, live *tariff.LiveStatus, prices Prices) Snapshot {
	day, season, ivs := cfg.IntervalsForDate(at)
	minute := at.Hour()*60 + at.Minute()
	computed := tariff.CurrentStatus(ivs, minute)

	snap := Snapshot{
		Schedule:  key,
		At:        at,
		Day:       day.String(),
		DayLabel:  day.Label(),
		Holiday:   day == calendar.Holiday,
		Intervals: ivs,
		Computed:  computed,
		Status:    computed,
		Label:     computed.Label(),
		Currency:  prices.Currency,
		Segments:  tariff.Segments(ivs),
		Labels:    tariff.Labels(ivs),
	}
	if snap.Intervals == nil {
		snap.Intervals = []tariff.Interval{}
	}
	if cfg.Seasonal {
		snap.Season = season.String()
		snap.Period = season.String()
	}
	if live != nil {
		snap.Live = live
		snap.Status = live.Status
		snap.Label = live.Label
		if live.Tempo != tariff.TempoNone {
			snap.Period = string(live.Tempo)
		}
	}
	snap.Price = prices.For(snap.Status)

	if c, ok := tariff.NextChange(ivs, minute); ok {
		mins := tariff.MinutesUntil(c, minute)
		start := time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), 0, 0, at.Location())
		snap.Next = &NextChange{
			At:           start.Add(time.Duration(mins) * time.Minute),
			Clock:        tariff.FormatClock(c.At),
			To:           c.To,
			Tomorrow:     c.Tomorrow(),
			MinutesUntil: mins,
			Countdown:    tariff.FormatMinutes(mins),
		}
	}
	return snap
}
