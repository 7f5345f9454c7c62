package mqtt

import (
	"encoding/json"
	"strings"

	"github.com/bher20/tarifmanager/internal/rates"
)

// liveKeys are the JSON attributes carrying the current tariff period, as
// published by zigbee2mqtt for ZLinky and by TIC-to-MQTT gateways.
var liveKeys = []string{
	"current_tarif",
	"active_register_tier_delivered",
	"PTEC",
	"LTARF",
	"ptec",
	"ltarf",
}

// ParseLivePayload extracts the meter period from a live topic payload. It
// accepts a JSON object, a JSON string or a bare value.
func ParseLivePayload(payload []byte) string {
	raw := strings.TrimSpace(string(payload))
	if raw == "" {
		return ""
	}
	switch raw[0] {
	case '{':
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return ""
		}
		for _, k := range liveKeys {
			if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
		return ""
	case '"':
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return ""
		}
		return s
	}
	return raw
}

// State is the JSON document published on a schedule's state topic. Every
// discovered entity reads one attribute of it.
type State struct {
	Current      string   `json:"current"`
	Status       string   `json:"status"`
	Next         string   `json:"next"`
	NextChange   string   `json:"next_change"`
	Remaining    string   `json:"remaining"`
	MinutesUntil int      `json:"minutes_until"`
	PriceNow     *float64 `json:"price_now"`
	Period       string   `json:"period"`
	IsHC         string   `json:"is_hc"`
	IsHSC        string   `json:"is_hsc"`
	Live         bool     `json:"live"`
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// StateFor renders a snapshot for Home Assistant.
func StateFor(snap *rates.Snapshot) State {
	st := State{
		Current:  snap.Label,
		Status:   snap.Status.String(),
		PriceNow: snap.Price,
		Period:   snap.Period,
		IsHC:     onOff(snap.IsOffPeak()),
		IsHSC:    onOff(snap.IsSuperOffPeak()),
		Live:     snap.Live != nil,
	}
	if st.Period == "" {
		st.Period = "standard"
	}
	if snap.Next != nil {
		st.Next = snap.Next.To.Label()
		st.NextChange = snap.Next.Clock
		st.Remaining = snap.Next.Countdown
		st.MinutesUntil = snap.Next.MinutesUntil
	}
	return st
}
