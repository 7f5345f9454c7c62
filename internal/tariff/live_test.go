package tariff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLiveStatus_ExactCodes(t *testing.T) {
	ls, ok := ParseLiveStatus("HCJR")
	assert.True(t, ok)
	assert.Equal(t, OffPeak, ls.Status)
	assert.Equal(t, TempoRouge, ls.Tempo)

	ls, ok = ParseLiveStatus(" hp.. ")
	assert.True(t, ok)
	assert.Equal(t, Peak, ls.Status)
	assert.Equal(t, TempoNone, ls.Tempo)

	ls, ok = ParseLiveStatus("PM..")
	assert.True(t, ok)
	assert.Equal(t, "Pointe Mobile", ls.Label)
}

func TestParseLiveStatus_Fuzzy(t *testing.T) {
	cases := map[string]Status{
		"HEURES CREUSES":       OffPeak,
		"Heures Pleines":       Peak,
		"HEURES SUPER CREUSES": SuperOffPeak,
		"HC BLEU":              OffPeak,
		"hsc 2":                SuperOffPeak,
	}
	for raw, want := range cases {
		ls, ok := ParseLiveStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, ls.Status, raw)
	}
}

func TestParseLiveStatus_NoMatch(t *testing.T) {
	for _, raw := range []string{"", "   ", "unknown", "unavailable", "Unavailable", "BASE", "42"} {
		_, ok := ParseLiveStatus(raw)
		assert.False(t, ok, "%q", raw)
	}
}

func TestSegments_SplitsAtMidnight(t *testing.T) {
	segs := Segments([]Interval{
		{Start: 1380, Duration: 120, Kind: OffPeak},
		{Start: 720, Duration: 144, Kind: SuperOffPeak},
	})
	if assert.Len(t, segs, 3) {
		assert.InDelta(t, 95.833, segs[0].Left, 0.001)
		assert.InDelta(t, 4.1667, segs[0].Width, 0.001)
		assert.Equal(t, 0.0, segs[1].Left)
		assert.InDelta(t, 4.1667, segs[1].Width, 0.001)
		assert.Equal(t, 50.0, segs[2].Left)
		assert.InDelta(t, 10.0, segs[2].Width, 0.001)
		assert.Equal(t, SuperOffPeak, segs[2].Kind)
	}
}

func TestLabels_DedupesAndSkipsFullDay(t *testing.T) {
	labels := Labels([]Interval{
		{Start: 0, Duration: MinutesPerDay, Kind: OffPeak},
		{Start: 120, Duration: 240, Kind: OffPeak},
		{Start: 130, Duration: 10, Kind: SuperOffPeak}, // too close to 02:00
	})
	var got []string
	for _, l := range labels {
		got = append(got, l.Label)
	}
	assert.Equal(t, []string{"00:00", "02:00", "06:00", "24:00"}, got)
}
