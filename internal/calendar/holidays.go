package calendar

import "time"

// fixedHolidays are the French public holidays that fall on the same
// month/day every year.
var fixedHolidays = []struct {
	Month time.Month
	Day   int
}{
	{time.January, 1},   // Jour de l'an
	{time.May, 1},       // Fête du travail
	{time.May, 8},       // Victoire 1945
	{time.July, 14},     // Fête nationale
	{time.August, 15},   // Assomption
	{time.November, 1},  // Toussaint
	{time.November, 11}, // Armistice
	{time.December, 25}, // Noël
}

// easterOffsets are the movable holidays, in days after Easter Sunday:
// Easter Sunday, Easter Monday, Ascension, Whit Sunday, Whit Monday.
var easterOffsets = []int{0, 1, 39, 49, 50}

// EasterSunday returns Easter Sunday of the given Gregorian year, at midnight
// UTC, using the anonymous Gregorian algorithm (Meeus/Jones/Butcher).
func EasterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// IsPublicHoliday reports whether date is a French public holiday. Only the
// calendar date in date's own location is considered.
func IsPublicHoliday(date time.Time) bool {
	year, month, day := date.Date()
	for _, h := range fixedHolidays {
		if h.Month == month && h.Day == day {
			return true
		}
	}

	easter := EasterSunday(year)
	for _, offset := range easterOffsets {
		d := easter.AddDate(0, 0, offset)
		if d.Month() == month && d.Day() == day {
			return true
		}
	}
	return false
}
