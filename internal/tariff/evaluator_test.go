package tariff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval_ContainsWraparound(t *testing.T) {
	iv := Interval{Start: 1380, Duration: 120, Kind: OffPeak} // 23:00 -> 01:00

	assert.True(t, iv.Wraps())
	assert.Equal(t, 60, iv.End())
	assert.True(t, iv.Contains(1430))
	assert.True(t, iv.Contains(30))
	assert.True(t, iv.Contains(1380))
	assert.False(t, iv.Contains(60))
	assert.False(t, iv.Contains(700))
}

func TestInterval_ContainsSameDay(t *testing.T) {
	iv := Interval{Start: 120, Duration: 60, Kind: OffPeak}

	assert.False(t, iv.Wraps())
	assert.False(t, iv.Contains(119))
	assert.True(t, iv.Contains(120))
	assert.True(t, iv.Contains(179))
	assert.False(t, iv.Contains(180))
}

func TestInterval_FullDay(t *testing.T) {
	iv := Interval{Start: 0, Duration: MinutesPerDay, Kind: OffPeak}

	assert.False(t, iv.Wraps())
	for _, m := range []int{0, 600, 1439} {
		assert.True(t, iv.Contains(m), "minute %d", m)
	}
}

func TestCurrentStatus_DefaultsToPeak(t *testing.T) {
	assert.Equal(t, Peak, CurrentStatus(nil, 500))
	assert.Equal(t, Peak, CurrentStatus([]Interval{{Start: 0, Duration: 60, Kind: OffPeak}}, 500))
}

func TestCurrentStatus_SuperOffPeakWinsRegardlessOfOrder(t *testing.T) {
	hc := Interval{Start: 0, Duration: 480, Kind: OffPeak}
	hsc := Interval{Start: 120, Duration: 240, Kind: SuperOffPeak}

	assert.Equal(t, SuperOffPeak, CurrentStatus([]Interval{hc, hsc}, 200))
	assert.Equal(t, SuperOffPeak, CurrentStatus([]Interval{hsc, hc}, 200))
	assert.Equal(t, OffPeak, CurrentStatus([]Interval{hsc, hc}, 400))
}

func TestNextChange_Empty(t *testing.T) {
	_, ok := NextChange(nil, 100)
	assert.False(t, ok)
}

func TestNextChange_WrapsToNextDay(t *testing.T) {
	ivs := []Interval{{Start: 120, Duration: 60, Kind: OffPeak}}

	c, ok := NextChange(ivs, 500)
	require.True(t, ok)
	assert.Equal(t, Change{At: 1560, To: OffPeak}, c)
	assert.True(t, c.Tomorrow())
	assert.Equal(t, 1060, MinutesUntil(c, 500))
}

func TestNextChange_StartAndEnd(t *testing.T) {
	ivs := []Interval{{Start: 120, Duration: 60, Kind: OffPeak}}

	c, ok := NextChange(ivs, 60)
	require.True(t, ok)
	assert.Equal(t, Change{At: 120, To: OffPeak}, c)

	c, ok = NextChange(ivs, 120)
	require.True(t, ok)
	assert.Equal(t, Change{At: 180, To: Peak}, c)
	assert.Equal(t, 60, MinutesUntil(c, 120))
}

func TestNextChange_WrappingIntervalEndsTomorrowMorning(t *testing.T) {
	ivs := []Interval{{Start: 1320, Duration: 480, Kind: OffPeak}} // 22:00 -> 06:00

	c, ok := NextChange(ivs, 1380)
	require.True(t, ok)
	// 06:00 is the first event of the day and nothing is after 23:00.
	assert.Equal(t, Change{At: 360 + MinutesPerDay, To: Peak}, c)
	assert.Equal(t, 420, MinutesUntil(c, 1380))
}

func TestNextChange_TiesKeepInsertionOrder(t *testing.T) {
	// Off-peak ends at 06:00 exactly when super-off-peak starts.
	ivs := []Interval{
		{Start: 0, Duration: 360, Kind: OffPeak},
		{Start: 360, Duration: 60, Kind: SuperOffPeak},
	}
	c, ok := NextChange(ivs, 100)
	require.True(t, ok)
	assert.Equal(t, Change{At: 360, To: Peak}, c)
}

func TestMinutesUntil_FullDayNeverZero(t *testing.T) {
	ivs := []Interval{{Start: 0, Duration: MinutesPerDay, Kind: OffPeak}}
	c, ok := NextChange(ivs, 0)
	require.True(t, ok)
	assert.Equal(t, 1440, MinutesUntil(c, 0))
}

func TestMinutesUntil_NonIncreasingAsTimeAdvances(t *testing.T) {
	ivs := []Interval{
		{Start: 1380, Duration: 420, Kind: OffPeak},
		{Start: 780, Duration: 120, Kind: OffPeak},
	}
	prevChange, _ := NextChange(ivs, 0)
	prev := MinutesUntil(prevChange, 0)
	for m := 1; m < MinutesPerDay; m++ {
		c, _ := NextChange(ivs, m)
		got := MinutesUntil(c, m)
		require.GreaterOrEqual(t, got, 1)
		if c == prevChange {
			assert.Equal(t, prev-1, got, "minute %d", m)
		}
		prevChange, prev = c, got
	}
}

func TestFormatMinutes(t *testing.T) {
	assert.Equal(t, "45min", FormatMinutes(45))
	assert.Equal(t, "2h", FormatMinutes(120))
	assert.Equal(t, "1h05", FormatMinutes(65))
	assert.Equal(t, "17h40", FormatMinutes(1060))
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "23:59", FormatClock(1439))
	assert.Equal(t, "02:00", FormatClock(1560))
}

func TestStatus_JSON(t *testing.T) {
	b, err := json.Marshal(Interval{Start: 120, Duration: 240, Kind: SuperOffPeak})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":120,"duration":240,"kind":"HSC"}`, string(b))

	var s Status
	require.NoError(t, json.Unmarshal([]byte(`"hc"`), &s))
	assert.Equal(t, OffPeak, s)
	assert.Error(t, json.Unmarshal([]byte(`"XX"`), &s))
}
