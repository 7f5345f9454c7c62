package schedule

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bher20/tarifmanager/internal/calendar"
)

// ErrInvalidOp is returned by Apply for operations with missing or
// out-of-range arguments.
var ErrInvalidOp = errors.New("schedule: invalid operation")

// Scope selects which settings an edit targets: the shared no-season
// values, or the winter or summer ones.
type Scope string

const (
	ScopeDefault Scope = "default"
	ScopeWinter  Scope = "winter"
	ScopeSummer  Scope = "summer"
)

func (s Scope) valid() bool {
	return s == ScopeDefault || s == ScopeWinter || s == ScopeSummer
}

// OpKind names an editor operation.
type OpKind string

const (
	OpToggleDaySpecific  OpKind = "toggle_day_specific"
	OpToggleDay          OpKind = "toggle_day"
	OpToggleSeasonality  OpKind = "toggle_seasonality"
	OpToggleSuperOffPeak OpKind = "toggle_super_off_peak"
	OpStepSlots          OpKind = "step_slots"
	OpStepStart          OpKind = "step_start"
	OpStepDuration       OpKind = "step_duration"
	OpCommit             OpKind = "commit"
)

// Op is one editor action. Only the fields relevant to Kind are read.
type Op struct {
	Kind   OpKind       `json:"op"`
	Day    calendar.Day `json:"day,omitempty"`
	Scope  Scope        `json:"scope,omitempty"`
	Window WindowID     `json:"window,omitempty"`
	Pos    int          `json:"pos,omitempty"`
	Delta  int          `json:"delta,omitempty"`
}

// Apply returns a copy of c with op applied. c itself is never modified.
func Apply(c Config, op Op) (Config, error) {
	switch op.Kind {
	case OpToggleDaySpecific:
		c.ToggleDaySpecific()
	case OpToggleDay:
		if !op.Day.Valid() {
			return c, fmt.Errorf("%w: day %d", ErrInvalidOp, op.Day)
		}
		c.ToggleDay(op.Day)
	case OpToggleSeasonality:
		c.ToggleSeasonality()
	case OpToggleSuperOffPeak:
		if !op.Scope.valid() {
			return c, fmt.Errorf("%w: scope %q", ErrInvalidOp, op.Scope)
		}
		c.ToggleSuperOffPeak(op.Scope)
	case OpStepSlots:
		if !op.Scope.valid() || !validDelta(op.Delta) {
			return c, fmt.Errorf("%w: step_slots scope=%q delta=%d", ErrInvalidOp, op.Scope, op.Delta)
		}
		c.StepSlotCount(op.Scope, op.Delta)
	case OpStepStart:
		if !op.Scope.valid() || !op.Window.valid() || op.Pos < 0 || op.Pos > 3 || !validDelta(op.Delta) {
			return c, fmt.Errorf("%w: step_start scope=%q window=%q pos=%d delta=%d",
				ErrInvalidOp, op.Scope, op.Window, op.Pos, op.Delta)
		}
		c.StepStartDigit(op.Scope, op.Window, op.Pos, op.Delta)
	case OpStepDuration:
		if !op.Scope.valid() || !op.Window.valid() || !validDelta(op.Delta) {
			return c, fmt.Errorf("%w: step_duration scope=%q window=%q delta=%d",
				ErrInvalidOp, op.Scope, op.Window, op.Delta)
		}
		c.StepDuration(op.Scope, op.Window, op.Delta)
	case OpCommit:
		c.Commit()
	default:
		return c, fmt.Errorf("%w: unknown op %q", ErrInvalidOp, op.Kind)
	}
	return c, nil
}

func validDelta(d int) bool { return d == 1 || d == -1 }

// ToggleDaySpecific flips day-specific mode. Turning it off clears the mask
// and empties the off-peak windows of the days that were forced.
func (c *Config) ToggleDaySpecific() {
	if c.DaySpecific {
		for d := range c.DayMask {
			if c.DayMask[d] {
				c.clearOffPeak(calendar.Day(d))
			}
		}
		c.DayMask = [calendar.NumDays]bool{}
	}
	c.DaySpecific = !c.DaySpecific
}

// ToggleDay flips the full-day override of day. It does nothing unless
// day-specific mode is on.
func (c *Config) ToggleDay(day calendar.Day) {
	if !c.DaySpecific || !day.Valid() {
		return
	}
	c.DayMask[day] = !c.DayMask[day]
	if !c.DayMask[day] {
		c.clearOffPeak(day)
		return
	}
	for s := range c.Lines {
		l := &c.Lines[s][day]
		l.OffPeak = [3]Window{{Start: 0, Duration: maxPrimaryDuration}}
	}
}

func (c *Config) clearOffPeak(day calendar.Day) {
	for s := range c.Lines {
		c.Lines[s][day].OffPeak = [3]Window{}
	}
}

// ToggleSeasonality flips seasonal mode. Turning it on hands the shared
// super-off-peak setting to both halves. Turning it off resets every slot
// count to one and removes every super-off-peak window.
func (c *Config) ToggleSeasonality() {
	if !c.Seasonal {
		c.Seasonal = true
		c.SuperWinter, c.SuperSummer = c.SuperDefault, c.SuperDefault
		c.applySuperOffPeak()
		return
	}
	c.Seasonal = false
	c.SlotsDefault, c.SlotsWinter, c.SlotsSummer = 1, 1, 1
	c.SuperDefault, c.SuperWinter, c.SuperSummer = false, false, false
	c.applySuperOffPeak()
	for s := range c.Lines {
		for d := range c.Lines[s] {
			c.Lines[s][d].Slots = 1
		}
	}
}

// ToggleSuperOffPeak flips the super-off-peak setting of scope, then rebuilds
// the super-off-peak window of every line from the setting governing its
// half: on means a 02:00 window of four hours.
func (c *Config) ToggleSuperOffPeak(scope Scope) {
	flag := c.superFlag(scope)
	*flag = !*flag
	c.applySuperOffPeak()
}

func (c *Config) applySuperOffPeak() {
	for s := range c.Lines {
		on := *c.superFlag(c.scopeFor(calendar.Season(s)))
		w := Window{}
		if on {
			w = Window{Start: 2 * 60, Duration: 4 * 60}
		}
		for d := range c.Lines[s] {
			c.Lines[s][d].SuperOffPeak = on
			c.Lines[s][d].Super = w
		}
	}
}

// scopeFor returns the scope whose settings govern the lines of season.
func (c *Config) scopeFor(season calendar.Season) Scope {
	switch {
	case !c.Seasonal:
		return ScopeDefault
	case season == calendar.Summer:
		return ScopeSummer
	}
	return ScopeWinter
}

// StepSlotCount moves the slot count of scope by delta, cycling 1..3.
func (c *Config) StepSlotCount(scope Scope, delta int) {
	n := c.slotCount(scope)
	*n = ((*n-1+delta)%3+3)%3 + 1
	c.updateSlotCodes()
}

// startDigitRange holds the bounds of each HHMM digit.
var startDigitRange = [4][2]int{{0, 2}, {0, 9}, {0, 5}, {0, 9}}

// StepStartDigit moves one digit (0..3 of HHMM) of a window start across the
// lines targeted by scope. Digits wrap within their range; hours above 23
// clamp to 23.
func (c *Config) StepStartDigit(scope Scope, id WindowID, pos, delta int) {
	c.forEachTarget(scope, func(l *Line) {
		w := l.window(id)
		h, m := w.Start/60, w.Start%60
		digits := [4]int{h / 10, h % 10, m / 10, m % 10}

		lo, hi := startDigitRange[pos][0], startDigitRange[pos][1]
		digits[pos] += delta
		if digits[pos] > hi {
			digits[pos] = lo
		} else if digits[pos] < lo {
			digits[pos] = hi
		}

		h = min(digits[0]*10+digits[1], 23)
		m = digits[2]*10 + digits[3]
		w.Start = h*60 + m
	})
}

// durationLadder lists the selectable window durations, 1h to 8h by 30min.
var durationLadder = func() []int {
	var out []int
	for d := 60; d <= 480; d += 30 {
		out = append(out, d)
	}
	return out
}()

// StepDuration moves a window duration one rung along durationLadder,
// cycling. A duration not on the ladder counts as its first rung.
func (c *Config) StepDuration(scope Scope, id WindowID, delta int) {
	n := len(durationLadder)
	c.forEachTarget(scope, func(l *Line) {
		w := l.window(id)
		i := max(slices.Index(durationLadder, w.Duration), 0)
		w.Duration = durationLadder[((i+delta)%n+n)%n]
	})
}

// Commit finalises a batch of edits before persistence: line slot codes
// follow the counts and an unseasonal table mirrors its winter half.
func (c *Config) Commit() {
	c.updateSlotCodes()
	if !c.Seasonal {
		c.SyncNoSeasonLines()
	}
}

// SyncNoSeasonLines copies the winter half over the summer half.
func (c *Config) SyncNoSeasonLines() {
	c.Lines[calendar.Summer] = c.Lines[calendar.Winter]
}

func (c *Config) updateSlotCodes() {
	for s := range c.Lines {
		n := c.EffectiveSlotCount(calendar.Season(s))
		for d := range c.Lines[s] {
			c.Lines[s][d].Slots = n
		}
	}
}

// forEachTarget visits the lines an edit on scope touches, skipping the
// days forced by day-specific mode: every line when unseasonal, else the
// summer half for ScopeSummer and the winter half otherwise.
func (c *Config) forEachTarget(scope Scope, fn func(*Line)) {
	seasons := []calendar.Season{calendar.Winter, calendar.Summer}
	if c.Seasonal {
		seasons = []calendar.Season{calendar.Winter}
		if scope == ScopeSummer {
			seasons = []calendar.Season{calendar.Summer}
		}
	}
	for _, s := range seasons {
		for d := range c.Lines[s] {
			if c.IsDaySpecific(calendar.Day(d)) {
				continue
			}
			fn(&c.Lines[s][d])
		}
	}
}

func (c *Config) slotCount(scope Scope) *int {
	switch scope {
	case ScopeWinter:
		return &c.SlotsWinter
	case ScopeSummer:
		return &c.SlotsSummer
	}
	return &c.SlotsDefault
}

func (c *Config) superFlag(scope Scope) *bool {
	switch scope {
	case ScopeWinter:
		return &c.SuperWinter
	case ScopeSummer:
		return &c.SuperSummer
	}
	return &c.SuperDefault
}
