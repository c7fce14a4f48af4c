package main

import (
	"testing"
	"time"

	"github.com/caarlos0/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scheerer/sparkle-lights/internal/lights/lifx"
	"github.com/scheerer/sparkle-lights/internal/lights/opc"
	"github.com/scheerer/sparkle-lights/internal/transport/mqtt"
	"github.com/scheerer/sparkle-lights/internal/transport/websocket"
	"github.com/scheerer/sparkle-lights/lights"
)

func defaultConfig(t *testing.T) SparkleConfig {
	t.Helper()
	var c SparkleConfig
	require.NoError(t, env.Parse(&c))
	return c
}

func TestDefaultConfig(t *testing.T) {
	c := defaultConfig(t)

	assert.Equal(t, 50, c.Pixels)
	assert.Equal(t, "ledcontroller/command", c.CommandTopic)
	assert.Equal(t, 15*time.Second, c.HousekeepingInterval)
	assert.Equal(t, time.Second, c.WatchdogPeriod)
	assert.True(t, c.BootIndicator)
	assert.NoError(t, c.validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("PIXELS", "120")
	t.Setenv("STATE_FILE", "/var/lib/sparkle/state.yaml")
	t.Setenv("BOOT_INDICATOR", "false")

	c := defaultConfig(t)
	assert.Equal(t, 120, c.Pixels)
	assert.Equal(t, "/var/lib/sparkle/state.yaml", c.StateFile)
	assert.False(t, c.BootIndicator)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *SparkleConfig)
	}{
		{"no pixels", func(c *SparkleConfig) { c.Pixels = 0 }},
		{"watchdog shorter than max delay", func(c *SparkleConfig) { c.WatchdogPeriod = 50 * time.Millisecond }},
		{"zero housekeeping", func(c *SparkleConfig) { c.HousekeepingInterval = 0 }},
		{"zero retry", func(c *SparkleConfig) { c.RetryDelay = 0 }},
		{"zero connect timeout", func(c *SparkleConfig) { c.ConnectTimeout = 0 }},
		{"zero inbox", func(c *SparkleConfig) { c.InboxSize = 0 }},
		{"opc channel", func(c *SparkleConfig) { c.OPCChannel = 256 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultConfig(t)
			tt.mutate(&c)
			assert.Error(t, c.validate())
		})
	}
}

func TestRedactedHidesPassword(t *testing.T) {
	c := SparkleConfig{MQTTPassword: "hunter2"}
	assert.Equal(t, "***", c.redacted().MQTTPassword)
	assert.Equal(t, "hunter2", c.MQTTPassword)
}

func TestNewPixelBus(t *testing.T) {
	c := defaultConfig(t)

	bus, err := newPixelBus(c, nil)
	require.NoError(t, err)
	assert.IsType(t, &opc.Bus{}, bus)

	c.PixelBus = "LIFX"
	bus, err = newPixelBus(c, nil)
	require.NoError(t, err)
	assert.IsType(t, &lifx.Bus{}, bus)

	c.ColorAlgo = "LOUDEST"
	_, err = newPixelBus(c, nil)
	assert.Error(t, err)

	c.PixelBus = "NONE"
	bus, err = newPixelBus(c, nil)
	require.NoError(t, err)
	assert.Equal(t, lights.Discard, bus)

	c.PixelBus = "DMX"
	_, err = newPixelBus(c, nil)
	assert.Error(t, err)
}

func TestNewTransport(t *testing.T) {
	c := defaultConfig(t)

	tr, err := newTransport(c)
	require.NoError(t, err)
	assert.IsType(t, &mqtt.Client{}, tr)

	c.Transport = "WEBSOCKET"
	_, err = newTransport(c)
	assert.Error(t, err)

	c.WebsocketURL = "ws://localhost:8080/ws"
	tr, err = newTransport(c)
	require.NoError(t, err)
	assert.IsType(t, &websocket.Client{}, tr)
}
