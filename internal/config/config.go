package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Environment variables are read
// first; a YAML file named by TARIFMANAGER_CONFIG overrides them.
type Config struct {
	Environment string `yaml:"environment"`
	HTTPAddr    string `yaml:"http_addr"`
	DBDriver    string `yaml:"db_driver"`
	DBDSN       string `yaml:"db_dsn"`
	Timezone    string `yaml:"timezone"`
	AuthEnabled bool   `yaml:"auth_enabled"`

	// EvaluateInterval is either integer seconds or a standard cron
	// expression.
	EvaluateInterval string `yaml:"evaluate_interval"`
	// RetentionDays bounds the transition history.
	RetentionDays int `yaml:"retention_days"`

	Schedules     []ScheduleConfig    `yaml:"schedules"`
	Prices        Prices              `yaml:"prices"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	Alert         AlertConfig         `yaml:"alert"`
}

// ScheduleConfig names a schedule the service manages.
type ScheduleConfig struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
	// Encoded optionally seeds the schedule on first start.
	Encoded string `yaml:"encoded"`
}

// Prices are per-kWh prices by tier; nil means unknown.
type Prices struct {
	Peak         *float64 `yaml:"hp"`
	OffPeak      *float64 `yaml:"hc"`
	SuperOffPeak *float64 `yaml:"hsc"`
	Currency     string   `yaml:"currency"`
}

// HomeAssistantConfig enables input_text persistence when URL is set.
type HomeAssistantConfig struct {
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	EntityBase string `yaml:"entity_base"`
}

// MQTTConfig enables the meter bridge when Broker is set.
type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	LiveTopic       string `yaml:"live_topic"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// AlertConfig configures transition notifications.
type AlertConfig struct {
	WebhookURL  string `yaml:"webhook_url"`
	WebhookType string `yaml:"webhook_type"`
}

// Load reads .env (if present), the environment and the optional YAML file.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := FromEnv()
	if path := os.Getenv("TARIFMANAGER_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() Config {
	cfg := Config{
		Environment:      os.Getenv("TARIFMANAGER_ENV"),
		HTTPAddr:         os.Getenv("TARIFMANAGER_HTTP_ADDR"),
		DBDriver:         os.Getenv("TARIFMANAGER_DB_DRIVER"),
		DBDSN:            os.Getenv("TARIFMANAGER_DB_DSN"),
		Timezone:         os.Getenv("TARIFMANAGER_TIMEZONE"),
		AuthEnabled:      envBool("TARIFMANAGER_AUTH_ENABLED"),
		EvaluateInterval: os.Getenv("TARIFMANAGER_EVALUATE_INTERVAL"),
		RetentionDays:    envInt("TARIFMANAGER_RETENTION_DAYS"),
		Prices: Prices{
			Peak:         envFloat("TARIFMANAGER_PRICE_HP"),
			OffPeak:      envFloat("TARIFMANAGER_PRICE_HC"),
			SuperOffPeak: envFloat("TARIFMANAGER_PRICE_HSC"),
			Currency:     os.Getenv("TARIFMANAGER_PRICE_CURRENCY"),
		},
		HomeAssistant: HomeAssistantConfig{
			URL:        os.Getenv("HA_URL"),
			Token:      os.Getenv("HA_TOKEN"),
			EntityBase: os.Getenv("HA_ENTITY_BASE"),
		},
		MQTT: MQTTConfig{
			Broker:          os.Getenv("MQTT_BROKER"),
			Username:        os.Getenv("MQTT_USERNAME"),
			Password:        os.Getenv("MQTT_PASSWORD"),
			ClientID:        os.Getenv("MQTT_CLIENT_ID"),
			LiveTopic:       os.Getenv("MQTT_LIVE_TOPIC"),
			DiscoveryPrefix: os.Getenv("MQTT_DISCOVERY_PREFIX"),
		},
		Alert: AlertConfig{
			WebhookURL:  os.Getenv("ALERT_WEBHOOK_URL"),
			WebhookType: os.Getenv("ALERT_WEBHOOK_TYPE"),
		},
	}
	if keys := os.Getenv("TARIFMANAGER_SCHEDULES"); keys != "" {
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.Schedules = append(cfg.Schedules, ScheduleConfig{Key: k, Name: k})
			}
		}
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.DBDriver == "" {
		c.DBDriver = "memory"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Paris"
	}
	if c.EvaluateInterval == "" {
		c.EvaluateInterval = "60"
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if len(c.Schedules) == 0 {
		c.Schedules = []ScheduleConfig{{Key: "default", Name: "Tarification"}}
	}
	if c.Prices.Currency == "" {
		c.Prices.Currency = "EUR"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "tarifmanager"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.MQTT.LiveTopic == "" {
		c.MQTT.LiveTopic = "zigbee2mqtt/linky"
	}
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func envInt(key string) int {
	v, _ := strconv.Atoi(os.Getenv(key))
	return v
}

func envFloat(key string) *float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return &v
}
