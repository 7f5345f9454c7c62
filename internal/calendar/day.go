package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Day is one of the eight day categories a schedule distinguishes: the seven
// weekdays and a special class for public holidays.
type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
	Holiday
)

// NumDays is the number of day categories.
const NumDays = 8

var dayKeys = [NumDays]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun", "hol"}

var dayLabels = [NumDays]string{"Lundi", "Mardi", "Mercredi", "Jeudi", "Vendredi", "Samedi", "Dimanche", "Jours fériés"}

// Valid reports whether d is one of the eight categories.
func (d Day) Valid() bool { return d >= Monday && d <= Holiday }

// String returns the short key of the category ("mon" ... "hol").
func (d Day) String() string {
	if !d.Valid() {
		return fmt.Sprintf("day(%d)", int(d))
	}
	return dayKeys[d]
}

// Label returns the French display label of the category.
func (d Day) Label() string {
	if !d.Valid() {
		return d.String()
	}
	return dayLabels[d]
}

// ParseDay accepts either a short key ("mon") or a numeric index ("0").
func ParseDay(s string) (Day, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, k := range dayKeys {
		if s == k {
			return Day(i), nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && Day(n).Valid() {
		return Day(n), nil
	}
	return 0, fmt.Errorf("invalid day %q", s)
}

// MarshalText encodes d as its short key.
func (d Day) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid day %d", int(d))
	}
	return []byte(dayKeys[d]), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	v, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Classify maps a calendar date to its day category: Holiday for public
// holidays, otherwise the ISO weekday with Monday as 0.
func Classify(date time.Time) Day {
	if IsPublicHoliday(date) {
		return Holiday
	}
	// time.Weekday has Sunday == 0.
	return Day((int(date.Weekday()) + 6) % 7)
}

// Season selects one half of a seasonal schedule. Winter doubles as the
// "no season" half when seasonality is disabled.
type Season int

const (
	Winter Season = iota
	Summer
)

// NumSeasons is the number of schedule halves.
const NumSeasons = 2

func (s Season) String() string {
	switch s {
	case Winter:
		return "winter"
	case Summer:
		return "summer"
	default:
		return fmt.Sprintf("season(%d)", int(s))
	}
}

// SeasonOf returns Summer for April 1 through October 31 and Winter for
// November 1 through March 31.
func SeasonOf(date time.Time) Season {
	m := date.Month()
	if m >= time.April && m <= time.October {
		return Summer
	}
	return Winter
}

// ParseSeason accepts "winter" or "summer".
func ParseSeason(s string) (Season, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "winter":
		return Winter, nil
	case "summer":
		return Summer, nil
	}
	return Winter, fmt.Errorf("invalid season %q", s)
}
