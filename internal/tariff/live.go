package tariff

import (
	"regexp"
	"strings"
)

// Tempo is the colour of an EDF Tempo day, as reported by the meter.
type Tempo string

const (
	TempoNone  Tempo = ""
	TempoBleu  Tempo = "bleu"
	TempoBlanc Tempo = "blanc"
	TempoRouge Tempo = "rouge"
)

// LiveStatus is a tariff period reported in real time by the meter (Linky
// TIC PTEC/LTARF through a ZLinky or similar bridge).
type LiveStatus struct {
	Status Status `json:"status"`
	Label  string `json:"label"`
	Tempo  Tempo  `json:"tempo,omitempty"`
}

// meterPeriods maps the period strings emitted by meters in historic and
// standard TIC modes.
var meterPeriods = map[string]LiveStatus{
	// historic HC/HP option
	"HC..": {OffPeak, "Heures creuses", TempoNone},
	"HP..": {Peak, "Heures pleines", TempoNone},
	// historic Tempo option
	"HCJB": {OffPeak, "HC Jour Bleu", TempoBleu},
	"HPJB": {Peak, "HP Jour Bleu", TempoBleu},
	"HCJW": {OffPeak, "HC Jour Blanc", TempoBlanc},
	"HPJW": {Peak, "HP Jour Blanc", TempoBlanc},
	"HCJR": {OffPeak, "HC Jour Rouge", TempoRouge},
	"HPJR": {Peak, "HP Jour Rouge", TempoRouge},
	// historic EJP option
	"HN..": {OffPeak, "Heures Normales", TempoNone},
	"PM..": {Peak, "Pointe Mobile", TempoNone},
	// standard mode
	"HP":    {Peak, "Heures pleines", TempoNone},
	"HC":    {OffPeak, "Heures creuses", TempoNone},
	"HSC":   {SuperOffPeak, "Heures super creuses", TempoNone},
	"HP HC": {Peak, "Heures pleines", TempoNone},
	"HC HP": {OffPeak, "Heures creuses", TempoNone},
}

// Fuzzy fallbacks, tried in order. Super-off-peak is checked first since its
// labels also mention "creuses".
var meterFallbacks = []struct {
	re     *regexp.Regexp
	status LiveStatus
}{
	{regexp.MustCompile(`(?i)HSC|SUPER`), LiveStatus{SuperOffPeak, "Heures super creuses", TempoNone}},
	{regexp.MustCompile(`(?i)HC|CREUSE`), LiveStatus{OffPeak, "Heures creuses", TempoNone}},
	{regexp.MustCompile(`(?i)HP|PLEINE`), LiveStatus{Peak, "Heures pleines", TempoNone}},
}

// ParseLiveStatus maps a raw meter value to a tariff tier. ok is false for
// empty, unknown, unavailable or unrecognised values, in which case the
// computed schedule status stands.
func ParseLiveStatus(raw string) (LiveStatus, bool) {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, "unknown") || strings.EqualFold(v, "unavailable") {
		return LiveStatus{}, false
	}
	if ls, ok := meterPeriods[v]; ok {
		return ls, true
	}
	if ls, ok := meterPeriods[strings.ToUpper(v)]; ok {
		return ls, true
	}
	for _, fb := range meterFallbacks {
		if fb.re.MatchString(v) {
			return fb.status, true
		}
	}
	return LiveStatus{}, false
}
