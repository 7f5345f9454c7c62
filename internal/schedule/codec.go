package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bher20/tarifmanager/internal/calendar"
)

// Record sizes of the fixed-width encoding.
const (
	LineRecordLen = 32
	MaskLen       = calendar.NumDays
	HeaderLen     = 1 + MaskLen + 1 + 3 + 3
	NumLines      = calendar.NumSeasons * calendar.NumDays
	EncodedLen    = HeaderLen + NumLines*LineRecordLen
)

// ErrMalformed wraps every decoding failure.
var ErrMalformed = errors.New("schedule: malformed record")

var slotCodes = [4]string{"", "00", "10", "11"}

// EncodeLine renders a line as its 32-character record:
//
//	CC F HHMM HHMM HHMM HMM HHMM HMM HHMM HMM
//
// slot code, super-off-peak flag, then start/duration pairs for off-peak 1,
// 2, 3 and super-off-peak. Out-of-range values are clamped.
func EncodeLine(l Line) string {
	var b strings.Builder
	b.Grow(LineRecordLen)
	b.WriteString(slotCodes[min(max(l.Slots, 1), 3)])
	b.WriteString(flag(l.SuperOffPeak))
	for i, id := range []WindowID{OffPeak1, OffPeak2, OffPeak3, Super} {
		w := l.window(id).clamped(id.maxDuration())
		fmt.Fprintf(&b, "%02d%02d", w.Start/60, w.Start%60)
		if i == 0 {
			fmt.Fprintf(&b, "%02d%02d", w.Duration/60, w.Duration%60)
		} else {
			fmt.Fprintf(&b, "%d%02d", w.Duration/60, w.Duration%60)
		}
	}
	return b.String()
}

// DecodeLine parses a 32-character line record.
func DecodeLine(s string) (Line, error) {
	var l Line
	if len(s) != LineRecordLen {
		return l, fmt.Errorf("%w: line record has %d chars, want %d", ErrMalformed, len(s), LineRecordLen)
	}
	switch s[:2] {
	case "00":
		l.Slots = 1
	case "10":
		l.Slots = 2
	case "11":
		l.Slots = 3
	default:
		return l, fmt.Errorf("%w: slot code %q", ErrMalformed, s[:2])
	}
	var err error
	if l.SuperOffPeak, err = parseFlag(s[2]); err != nil {
		return l, err
	}

	p := 3
	for i, id := range []WindowID{OffPeak1, OffPeak2, OffPeak3, Super} {
		w := l.window(id)
		if w.Start, err = parseClock(s[p : p+4]); err != nil {
			return l, err
		}
		p += 4
		durLen := 3
		if i == 0 {
			durLen = 4
		}
		if w.Duration, err = parseDuration(s[p:p+durLen], id.maxDuration()); err != nil {
			return l, err
		}
		p += durLen
	}
	return l, nil
}

// EncodeMask renders the day-specific mask as eight '0'/'1' characters.
func EncodeMask(mask [calendar.NumDays]bool) string {
	var b strings.Builder
	for _, on := range mask {
		b.WriteString(flag(on))
	}
	return b.String()
}

// DecodeMask parses an eight-character day mask.
func DecodeMask(s string) ([calendar.NumDays]bool, error) {
	var mask [calendar.NumDays]bool
	if len(s) != MaskLen {
		return mask, fmt.Errorf("%w: mask has %d chars, want %d", ErrMalformed, len(s), MaskLen)
	}
	for i := range mask {
		on, err := parseFlag(s[i])
		if err != nil {
			return mask, err
		}
		mask[i] = on
	}
	return mask, nil
}

// Encode renders the whole schedule: a 16-character header followed by the
// sixteen line records, winter half first. Header layout:
//
//	D MMMMMMMM S N N N F F F
//
// day-specific flag, day mask, seasonal flag, slot counts (default, winter,
// summer) and super-off-peak flags in the same order.
func Encode(c Config) string {
	var b strings.Builder
	b.Grow(EncodedLen)
	b.WriteString(flag(c.DaySpecific))
	b.WriteString(EncodeMask(c.DayMask))
	b.WriteString(flag(c.Seasonal))
	for _, n := range []int{c.SlotsDefault, c.SlotsWinter, c.SlotsSummer} {
		fmt.Fprintf(&b, "%d", min(max(n, 1), 3))
	}
	for _, on := range []bool{c.SuperDefault, c.SuperWinter, c.SuperSummer} {
		b.WriteString(flag(on))
	}
	for s := range c.Lines {
		for d := range c.Lines[s] {
			b.WriteString(EncodeLine(c.Lines[s][d]))
		}
	}
	return b.String()
}

// Decode parses an encoded schedule. It rejects anything that Encode could
// not have produced.
func Decode(s string) (Config, error) {
	var c Config
	if len(s) != EncodedLen {
		return c, fmt.Errorf("%w: schedule has %d chars, want %d", ErrMalformed, len(s), EncodedLen)
	}

	var err error
	if c.DaySpecific, err = parseFlag(s[0]); err != nil {
		return c, err
	}
	if c.DayMask, err = DecodeMask(s[1 : 1+MaskLen]); err != nil {
		return c, err
	}
	p := 1 + MaskLen
	if c.Seasonal, err = parseFlag(s[p]); err != nil {
		return c, err
	}
	p++
	for _, n := range []*int{&c.SlotsDefault, &c.SlotsWinter, &c.SlotsSummer} {
		if s[p] < '1' || s[p] > '3' {
			return c, fmt.Errorf("%w: slot count %q", ErrMalformed, s[p])
		}
		*n = int(s[p] - '0')
		p++
	}
	for _, f := range []*bool{&c.SuperDefault, &c.SuperWinter, &c.SuperSummer} {
		if *f, err = parseFlag(s[p]); err != nil {
			return c, err
		}
		p++
	}

	for i := 0; i < NumLines; i++ {
		l, err := DecodeLine(s[p : p+LineRecordLen])
		if err != nil {
			return c, fmt.Errorf("line %d: %w", i, err)
		}
		c.Lines[i/calendar.NumDays][i%calendar.NumDays] = l
		p += LineRecordLen
	}
	return c, nil
}

// DecodeOrEmpty decodes s, falling back to New on any error. The error is
// still returned so callers can log it.
func DecodeOrEmpty(s string) (Config, error) {
	c, err := Decode(s)
	if err != nil {
		return New(), err
	}
	return c, nil
}

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

func parseFlag(ch byte) (bool, error) {
	switch ch {
	case '0':
		return false, nil
	case '1':
		return true, nil
	}
	return false, fmt.Errorf("%w: flag %q", ErrMalformed, ch)
}

func parseDigits(s string) (int, error) {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: non-digit in %q", ErrMalformed, s)
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, nil
}

// parseClock parses HHMM into minutes since midnight.
func parseClock(s string) (int, error) {
	n, err := parseDigits(s)
	if err != nil {
		return 0, err
	}
	h, m := n/100, n%100
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: time %q", ErrMalformed, s)
	}
	return h*60 + m, nil
}

// parseDuration parses HHMM or HMM into minutes, bounded by limit.
func parseDuration(s string, limit int) (int, error) {
	n, err := parseDigits(s)
	if err != nil {
		return 0, err
	}
	h, m := n/100, n%100
	d := h*60 + m
	if m > 59 || d > limit {
		return 0, fmt.Errorf("%w: duration %q", ErrMalformed, s)
	}
	return d, nil
}
