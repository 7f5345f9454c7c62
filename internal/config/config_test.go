package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("TARIFMANAGER_DB_DRIVER", "")
	t.Setenv("TARIFMANAGER_SCHEDULES", "")

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.DBDriver)
	assert.Equal(t, "Europe/Paris", cfg.Timezone)
	assert.Equal(t, "60", cfg.EvaluateInterval)
	assert.Equal(t, 90, cfg.RetentionDays)
	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "default", cfg.Schedules[0].Key)
	assert.Nil(t, cfg.Prices.Peak)
}

func TestFromEnv_PricesAndSchedules(t *testing.T) {
	t.Setenv("TARIFMANAGER_PRICE_HP", "0,2700")
	t.Setenv("TARIFMANAGER_PRICE_HC", "0.2068")
	t.Setenv("TARIFMANAGER_PRICE_HSC", "abc")
	t.Setenv("TARIFMANAGER_SCHEDULES", "home, garage ,")

	cfg := FromEnv()
	require.NotNil(t, cfg.Prices.Peak)
	assert.InDelta(t, 0.27, *cfg.Prices.Peak, 1e-9)
	assert.InDelta(t, 0.2068, *cfg.Prices.OffPeak, 1e-9)
	assert.Nil(t, cfg.Prices.SuperOffPeak)
	require.Len(t, cfg.Schedules, 2)
	assert.Equal(t, "garage", cfg.Schedules[1].Key)
}

func TestLoad_YAMLOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tarif.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: Europe/Brussels
prices:
  hp: 0.25
  hsc: 0.12
mqtt:
  broker: tcp://broker:1883
schedules:
  - key: home
    name: Maison
`), 0o600))

	t.Setenv("TARIFMANAGER_CONFIG", path)
	t.Setenv("TARIFMANAGER_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Brussels", cfg.Timezone)
	assert.InDelta(t, 0.12, *cfg.Prices.SuperOffPeak, 1e-9)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "homeassistant", cfg.MQTT.DiscoveryPrefix)
	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "Maison", cfg.Schedules[0].Name)
}

func TestLoad_BadFile(t *testing.T) {
	t.Setenv("TARIFMANAGER_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
