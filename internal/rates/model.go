package rates

import (
	"time"

	"github.com/bher20/tarifmanager/internal/tariff"
)

// Snapshot is the evaluated state of a schedule at one instant. It carries
// everything a dashboard card or a Home Assistant sensor needs.
type Snapshot struct {
	Schedule string    `json:"schedule"`
	At       time.Time `json:"at"`
	Day      string    `json:"day"`
	DayLabel string    `json:"day_label"`
	Holiday  bool      `json:"holiday"`
	Season   string    `json:"season,omitempty"`

	Intervals []tariff.Interval `json:"intervals"`

	// Computed is what the schedule says; Status is what is displayed, which
	// a live meter reading may override.
	Computed tariff.Status      `json:"computed"`
	Status   tariff.Status      `json:"status"`
	Label    string             `json:"label"`
	Live     *tariff.LiveStatus `json:"live,omitempty"`

	Next *NextChange `json:"next,omitempty"`

	Price    *float64 `json:"price,omitempty"`
	Currency string   `json:"currency,omitempty"`
	Period   string   `json:"period,omitempty"`

	Segments []tariff.Segment   `json:"segments"`
	Labels   []tariff.TimeLabel `json:"labels"`
}

// IsOffPeak reports whether the displayed status is off-peak (not super).
func (s *Snapshot) IsOffPeak() bool { return s.Status == tariff.OffPeak }

// IsSuperOffPeak reports whether the displayed status is super-off-peak.
func (s *Snapshot) IsSuperOffPeak() bool { return s.Status == tariff.SuperOffPeak }

// NextChange is the next boundary of the schedule, resolved to wall-clock
// time.
type NextChange struct {
	At           time.Time     `json:"at"`
	Clock        string        `json:"clock"`
	To           tariff.Status `json:"to"`
	Tomorrow     bool          `json:"tomorrow"`
	MinutesUntil int           `json:"minutes_until"`
	Countdown    string        `json:"countdown"`
}

// Prices are per-kWh prices by tier; nil means unknown.
type Prices struct {
	Peak         *float64
	OffPeak      *float64
	SuperOffPeak *float64
	Currency     string
}

// For returns the price of status, or nil.
func (p Prices) For(s tariff.Status) *float64 {
	switch s {
	case tariff.OffPeak:
		return p.OffPeak
	case tariff.SuperOffPeak:
		return p.SuperOffPeak
	default:
		return p.Peak
	}
}
