package tariff

import (
	"math"
	"sort"
)

// Segment is a horizontal slice of the 24h timeline bar, in percent of the
// day.
type Segment struct {
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
	Kind  Status  `json:"kind"`
}

// TimeLabel is a tick on the timeline bar.
type TimeLabel struct {
	Pos   float64 `json:"pos"`
	Label string  `json:"label"`
}

// minLabelGap is the minimum distance, in percent, between two labels.
const minLabelGap = 3.0

func pct(minutes int) float64 {
	return float64(minutes) / MinutesPerDay * 100
}

// Segments splits intervals into bar segments; an interval crossing
// midnight yields one segment ending at 24:00 and one starting at 00:00.
func Segments(intervals []Interval) []Segment {
	out := make([]Segment, 0, len(intervals))
	for _, iv := range intervals {
		if !iv.Wraps() {
			out = append(out, Segment{Left: pct(iv.Start), Width: pct(iv.Duration), Kind: iv.Kind})
			continue
		}
		first := MinutesPerDay - iv.Start
		out = append(out,
			Segment{Left: pct(iv.Start), Width: pct(first), Kind: iv.Kind},
			Segment{Left: 0, Width: pct(iv.Duration - first), Kind: iv.Kind},
		)
	}
	return out
}

// Labels returns start/end ticks for every partial-day interval plus the
// 00:00 and 24:00 bounds, dropping ticks closer than minLabelGap to the
// previous one.
func Labels(intervals []Interval) []TimeLabel {
	labels := []TimeLabel{{Pos: 0, Label: "00:00"}, {Pos: 100, Label: "24:00"}}
	for _, iv := range intervals {
		if iv.Duration >= MinutesPerDay {
			continue
		}
		labels = append(labels,
			TimeLabel{Pos: pct(iv.Start), Label: FormatClock(iv.Start)},
			TimeLabel{Pos: pct(iv.End()), Label: FormatClock(iv.End())},
		)
	}
	sort.SliceStable(labels, func(i, j int) bool { return labels[i].Pos < labels[j].Pos })

	out := labels[:0:0]
	for _, l := range labels {
		if len(out) == 0 || math.Abs(l.Pos-out[len(out)-1].Pos) > minLabelGap {
			out = append(out, l)
		}
	}
	return out
}
