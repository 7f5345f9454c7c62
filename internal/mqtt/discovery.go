package mqtt

import (
	"encoding/json"
	"strings"
)

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
}

type discoveryConfig struct {
	Name              string          `json:"name"`
	StateTopic        string          `json:"state_topic"`
	ValueTemplate     string          `json:"value_template"`
	UniqueID          string          `json:"unique_id"`
	Icon              string          `json:"icon,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	PayloadOn         string          `json:"payload_on,omitempty"`
	PayloadOff        string          `json:"payload_off,omitempty"`
	ExpireAfter       uint            `json:"expire_after,omitempty"`
	Device            discoveryDevice `json:"device"`
}

type entity struct {
	component string // sensor or binary_sensor
	key       string
	name      string
	icon      string
	unit      bool
}

var entities = []entity{
	{"sensor", "current", "Tarif actuel", "mdi:flash", false},
	{"sensor", "next", "Prochain tarif", "mdi:flash-outline", false},
	{"sensor", "next_change", "Prochain changement", "mdi:clock-outline", false},
	{"sensor", "remaining", "Temps restant", "mdi:timer-sand", false},
	{"sensor", "price_now", "Prix actuel", "mdi:currency-eur", true},
	{"sensor", "period", "Période", "mdi:calendar", false},
	{"binary_sensor", "is_hc", "Heures creuses", "mdi:power-sleep", false},
	{"binary_sensor", "is_hsc", "Heures super creuses", "mdi:weather-night", false},
}

func deviceID(key string) string {
	return "tarifmanager_" + strings.ReplaceAll(strings.ToLower(key), " ", "_")
}

// StateTopic is where the state document of schedule key is published.
func StateTopic(prefix, key string) string {
	return prefix + "/sensor/" + deviceID(key) + "/state"
}

// DiscoveryMessages returns the retained Home Assistant discovery configs
// for the sensors of one schedule.
func DiscoveryMessages(prefix, key, name, currency string) ([]Message, error) {
	id := deviceID(key)
	msgs := make([]Message, 0, len(entities))
	for _, e := range entities {
		cfg := discoveryConfig{
			Name:          e.name,
			StateTopic:    StateTopic(prefix, key),
			ValueTemplate: "{{ value_json." + e.key + " }}",
			UniqueID:      id + "_" + e.key,
			Icon:          e.icon,
			ExpireAfter:   60 * 30,
			Device: discoveryDevice{
				Identifiers:  []string{id},
				Name:         name,
				Manufacturer: "tarifmanager",
				Model:        "HP/HC/HSC",
			},
		}
		if e.component == "binary_sensor" {
			cfg.PayloadOn, cfg.PayloadOff = "ON", "OFF"
		}
		if e.unit && currency != "" {
			cfg.UnitOfMeasurement = currency + "/kWh"
			cfg.DeviceClass = "monetary"
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{
			Topic:   prefix + "/" + e.component + "/" + id + "_" + e.key + "/config",
			Payload: payload,
			QoS:     2,
			Retain:  true,
		})
	}
	return msgs, nil
}
