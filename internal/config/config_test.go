package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "localhost", cfg.Broker.Host)
	assert.Equal(t, 1883, cfg.Broker.Port)
	assert.Equal(t, byte(1), cfg.Broker.QoS)
	assert.Equal(t, 14, cfg.Subscriptions.TrialDays)
	assert.Equal(t, 7, cfg.Subscriptions.GracePeriodDays)
	assert.Equal(t, 7660, cfg.Server.Port)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PITSENSE_BROKER_HOST", "mqtt.example.com")
	t.Setenv("PITSENSE_BROKER_PORT", "8883")
	t.Setenv("PITSENSE_BROKER_TLS", "true")
	t.Setenv("PITSENSE_BROKER_QOS", "2")
	t.Setenv("PITSENSE_SUBSCRIPTIONS_TRIAL_DAYS", "30")
	t.Setenv("PITSENSE_LOG_LEVEL", "debug")

	cfg := Default()
	cfg.applyEnv()

	assert.Equal(t, "mqtt.example.com", cfg.Broker.Host)
	assert.Equal(t, 8883, cfg.Broker.Port)
	assert.True(t, cfg.Broker.TLS)
	assert.Equal(t, byte(2), cfg.Broker.QoS)
	assert.Equal(t, 30, cfg.Subscriptions.TrialDays)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestApplyEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("PITSENSE_BROKER_PORT", "not-a-number")
	t.Setenv("PITSENSE_BROKER_QOS", "9")

	cfg := Default()
	cfg.applyEnv()

	assert.Equal(t, 1883, cfg.Broker.Port)
	assert.Equal(t, byte(1), cfg.Broker.QoS)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Auth.Secret = "test-secret"
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Auth.Secret = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Broker.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Auth.BcryptCost = 4
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.DB.URL = ""
	assert.Error(t, cfg.Validate())
}

func TestBrokerURL(t *testing.T) {
	b := Broker{Host: "mqtt.example.com", Port: 1883}
	assert.Equal(t, "mqtt://mqtt.example.com:1883", b.BrokerURL())
	b.TLS = true
	b.Port = 8883
	assert.Equal(t, "mqtts://mqtt.example.com:8883", b.BrokerURL())
}
