// Package config loads the server configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/errors"
)

const envPrefix = "PITSENSE_"

// Broker holds the MQTT connection settings.
type Broker struct {
	Host              string
	Port              int
	User              string
	Password          string
	KeepaliveS        int
	QoS               byte
	ReconnectBackoffS int
	TLS               bool
}

// DB holds the database settings. URL is a SQLite path or DSN;
// PoolSize and MaxOverflow map onto database/sql's open/idle limits.
type DB struct {
	URL         string
	PoolSize    int
	MaxOverflow int
	Echo        bool
}

// Auth holds token and login-hardening settings.
type Auth struct {
	Secret            string
	AccessTokenTTLH   int
	OwnerTokenTTLH    int
	CustomerTokenTTLH int
	MaxLoginAttempts  int
	LockoutMinutes    int
	BcryptCost        int
}

// Sensors holds fleet health thresholds.
type Sensors struct {
	DeviceOfflineS int
	CameraOfflineS int
	RetentionDays  int
}

// Subscriptions holds licensing lifecycle settings.
type Subscriptions struct {
	TrialDays       int
	GracePeriodDays int
	SweepIntervalS  int
}

// Firmware holds the binary store settings.
type Firmware struct {
	UploadDir string
	// BaseURL prefixes the download endpoint in OTA payloads.
	BaseURL string
}

// Server holds the HTTP listener settings.
type Server struct {
	Host string
	Port int
}

// Config is the full server configuration.
type Config struct {
	Broker        Broker
	DB            DB
	Auth          Auth
	Sensors       Sensors
	Subscriptions Subscriptions
	Firmware      Firmware
	Server        Server
	LogLevel      string
	LogFormat     string
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Broker: Broker{
			Host:              "localhost",
			Port:              1883,
			KeepaliveS:        60,
			QoS:               1,
			ReconnectBackoffS: 5,
		},
		DB: DB{
			URL:         "./data/pitsense.db",
			PoolSize:    5,
			MaxOverflow: 10,
		},
		Auth: Auth{
			AccessTokenTTLH:   24,
			OwnerTokenTTLH:    72,
			CustomerTokenTTLH: 12,
			MaxLoginAttempts:  5,
			LockoutMinutes:    15,
			BcryptCost:        12,
		},
		Sensors: Sensors{
			DeviceOfflineS: 60,
			CameraOfflineS: 30,
			RetentionDays:  90,
		},
		Subscriptions: Subscriptions{
			TrialDays:       14,
			GracePeriodDays: 7,
			SweepIntervalS:  300,
		},
		Firmware: Firmware{
			UploadDir: "./data/firmware",
			BaseURL:   "http://localhost:7660",
		},
		Server: Server{
			Host: "0.0.0.0",
			Port: 7660,
		},
		LogLevel:  "info",
		LogFormat: "auto",
	}
}

// Load reads an optional .env file, applies environment overrides to
// the defaults, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file, using environment only")
	}

	cfg := Default()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Broker.Host, "BROKER_HOST")
	setInt(&c.Broker.Port, "BROKER_PORT")
	setString(&c.Broker.User, "BROKER_USER")
	setString(&c.Broker.Password, "BROKER_PASSWORD")
	setInt(&c.Broker.KeepaliveS, "BROKER_KEEPALIVE_S")
	setInt(&c.Broker.ReconnectBackoffS, "BROKER_RECONNECT_BACKOFF_S")
	setBool(&c.Broker.TLS, "BROKER_TLS")
	if val := os.Getenv(envPrefix + "BROKER_QOS"); val != "" {
		if qos, err := strconv.Atoi(val); err == nil && qos >= 0 && qos <= 2 {
			c.Broker.QoS = byte(qos)
		}
	}

	setString(&c.DB.URL, "DB_URL")
	setInt(&c.DB.PoolSize, "DB_POOL_SIZE")
	setInt(&c.DB.MaxOverflow, "DB_MAX_OVERFLOW")
	setBool(&c.DB.Echo, "DB_ECHO")

	setString(&c.Auth.Secret, "AUTH_SECRET")
	setInt(&c.Auth.AccessTokenTTLH, "AUTH_ACCESS_TOKEN_TTL_H")
	setInt(&c.Auth.OwnerTokenTTLH, "AUTH_OWNER_TOKEN_TTL_H")
	setInt(&c.Auth.CustomerTokenTTLH, "AUTH_CUSTOMER_TOKEN_TTL_H")
	setInt(&c.Auth.MaxLoginAttempts, "AUTH_MAX_LOGIN_ATTEMPTS")
	setInt(&c.Auth.LockoutMinutes, "AUTH_LOCKOUT_MINUTES")
	setInt(&c.Auth.BcryptCost, "AUTH_BCRYPT_COST")

	setInt(&c.Sensors.DeviceOfflineS, "SENSORS_DEVICE_OFFLINE_S")
	setInt(&c.Sensors.CameraOfflineS, "SENSORS_CAMERA_OFFLINE_S")
	setInt(&c.Sensors.RetentionDays, "SENSORS_RETENTION_DAYS")

	setInt(&c.Subscriptions.TrialDays, "SUBSCRIPTIONS_TRIAL_DAYS")
	setInt(&c.Subscriptions.GracePeriodDays, "SUBSCRIPTIONS_GRACE_PERIOD_DAYS")
	setInt(&c.Subscriptions.SweepIntervalS, "SUBSCRIPTIONS_SWEEP_INTERVAL_S")

	setString(&c.Firmware.UploadDir, "FIRMWARE_UPLOAD_DIR")
	setString(&c.Firmware.BaseURL, "FIRMWARE_BASE_URL")

	setString(&c.Server.Host, "SERVER_HOST")
	setInt(&c.Server.Port, "SERVER_PORT")

	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
}

// Validate checks the configuration for values the server cannot run
// with.
func (c *Config) Validate() error {
	const op = "config.Validate"
	if c.Broker.Host == "" {
		return errors.Ef(errors.KindValidation, op, "broker host must not be empty")
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return errors.Ef(errors.KindValidation, op, "broker port %d out of range", c.Broker.Port)
	}
	if c.Broker.QoS > 2 {
		return errors.Ef(errors.KindValidation, op, "broker qos %d out of range", c.Broker.QoS)
	}
	if c.DB.URL == "" {
		return errors.Ef(errors.KindValidation, op, "db url must not be empty")
	}
	if c.DB.PoolSize <= 0 {
		return errors.Ef(errors.KindValidation, op, "db pool size must be positive")
	}
	if c.Auth.Secret == "" {
		return errors.Ef(errors.KindValidation, op, "auth secret must be set (%sAUTH_SECRET)", envPrefix)
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 31 {
		return errors.Ef(errors.KindValidation, op, "bcrypt cost %d out of range", c.Auth.BcryptCost)
	}
	if c.Subscriptions.GracePeriodDays < 0 {
		return errors.Ef(errors.KindValidation, op, "grace period must not be negative")
	}
	if c.Firmware.UploadDir == "" {
		return errors.Ef(errors.KindValidation, op, "firmware upload dir must not be empty")
	}
	return nil
}

func setString(dst *string, key string) {
	if val := os.Getenv(envPrefix + key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(envPrefix + key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		} else {
			log.Warn().Str("key", envPrefix+key).Str("value", val).Msg("Ignoring non-integer environment value")
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(envPrefix + key); val != "" {
		*dst = strings.EqualFold(val, "true") || val == "1"
	}
}

// BrokerURL renders the broker address for the MQTT client.
func (b Broker) BrokerURL() string {
	scheme := "mqtt"
	if b.TLS {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}
