package tariff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is a tariff tier. Peak is the default, full-price state.
type Status int

const (
	Peak Status = iota
	OffPeak
	SuperOffPeak
)

// MinutesPerDay is the length of the evaluation cycle.
const MinutesPerDay = 1440

var (
	statusCodes  = [...]string{"HP", "HC", "HSC"}
	statusLabels = [...]string{"Heures pleines", "Heures creuses", "Heures super creuses"}
)

func (s Status) valid() bool { return s >= Peak && s <= SuperOffPeak }

// String returns the short tariff code: HP, HC or HSC.
func (s Status) String() string {
	if !s.valid() {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusCodes[s]
}

// Label returns the French display label.
func (s Status) Label() string {
	if !s.valid() {
		return s.String()
	}
	return statusLabels[s]
}

// ParseStatus accepts the short codes HP, HC and HSC, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HP":
		return Peak, nil
	case "HC":
		return OffPeak, nil
	case "HSC":
		return SuperOffPeak, nil
	}
	return Peak, fmt.Errorf("unknown tariff status %q", s)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
