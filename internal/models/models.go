// Package models holds the persistent entities of the control plane.
// All timestamps are timezone-aware UTC.
package models

import "time"

// Tenant is a workshop: the top-level owner of devices, locations,
// users, and thresholds.
type Tenant struct {
	ID                 int64        `json:"id"`
	Name               string       `json:"name"`
	Slug               string       `json:"slug"`
	SubscriptionPlan   string       `json:"subscription_plan"`
	SubscriptionStatus TenantStatus `json:"subscription_status"`
	ExpiresAt          *time.Time   `json:"expires_at,omitempty"`
	IsActive           bool         `json:"is_active"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Location is a pit: a physical bay owning at most one device and one
// camera.
type Location struct {
	ID           int64          `json:"id"`
	TenantID     int64          `json:"tenant_id"`
	Number       int            `json:"number"`
	Name         string         `json:"name,omitempty"`
	Status       LocationStatus `json:"status"`
	CameraIP     string         `json:"camera_ip,omitempty"`
	CameraRTSP   string         `json:"camera_rtsp_url,omitempty"`
	CameraModel  string         `json:"camera_model,omitempty"`
	CameraOnline bool           `json:"camera_online"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Device is an IoT gateway publishing sensor readings under a license.
// LicenseKey and TenantID are nil while the device is pending; the
// DeviceID string never changes.
type Device struct {
	ID                    int64        `json:"id"`
	DeviceID              string       `json:"device_id"`
	LicenseKey            *string      `json:"license_key,omitempty"`
	TenantID              *int64       `json:"tenant_id,omitempty"`
	LocationID            *int64       `json:"location_id,omitempty"`
	PrimarySensorType     string       `json:"primary_sensor_type"`
	AQSensorType          *string      `json:"aq_sensor_type,omitempty"`
	FirmwareVersion       string       `json:"firmware_version,omitempty"`
	MAC                   string       `json:"mac,omitempty"`
	IP                    string       `json:"ip,omitempty"`
	Status                DeviceStatus `json:"status"`
	IsOnline              bool         `json:"is_online"`
	LastSeen              *time.Time   `json:"last_seen,omitempty"`
	LastMessage           *time.Time   `json:"last_message,omitempty"`
	ReportIntervalSeconds int          `json:"report_interval_seconds"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// SensorType is a reference row describing a sensor code and which
// reading fields it produces.
type SensorType struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Capabilities uint32 `json:"capabilities"`
	IsActive     bool   `json:"is_active"`
}

// Capability bits for SensorType.Capabilities.
const (
	CapTemperature uint32 = 1 << iota
	CapHumidity
	CapPressure
	CapGasResistance
	CapIAQ
	CapParticulates
)

// Reading is a single sensor observation. High-volume, append-only.
type Reading struct {
	ID                int64      `json:"id"`
	DeviceID          string     `json:"device_id"`
	LocationID        int64      `json:"location_id"`
	TenantID          int64      `json:"tenant_id"`
	PrimarySensorType *string    `json:"primary_sensor_type,omitempty"`
	AQSensorType      *string    `json:"aq_sensor_type,omitempty"`
	Temperature       *float64   `json:"temperature,omitempty"`
	Humidity          *float64   `json:"humidity,omitempty"`
	Pressure          *float64   `json:"pressure,omitempty"`
	GasResistance     *float64   `json:"gas_resistance,omitempty"`
	IAQ               *float64   `json:"iaq,omitempty"`
	IAQAccuracy       *int64     `json:"iaq_accuracy,omitempty"`
	PM1               *float64   `json:"pm1,omitempty"`
	PM25              *float64   `json:"pm25,omitempty"`
	PM10              *float64   `json:"pm10,omitempty"`
	Particles03um     *int64     `json:"particles_03um,omitempty"`
	Particles05um     *int64     `json:"particles_05um,omitempty"`
	Particles10um     *int64     `json:"particles_10um,omitempty"`
	Particles25um     *int64     `json:"particles_25um,omitempty"`
	Particles50um     *int64     `json:"particles_50um,omitempty"`
	Particles100um    *int64     `json:"particles_100um,omitempty"`
	IsValid           bool       `json:"is_valid"`
	ValidationNotes   string     `json:"validation_notes,omitempty"`
	DeviceTimestamp   *time.Time `json:"device_timestamp,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Subscription is the licensing record that gates whether a device's
// readings are accepted. The relationship to Device is by DeviceID.
type Subscription struct {
	ID              int64              `json:"id"`
	TenantID        int64              `json:"tenant_id"`
	DeviceID        *string            `json:"device_id,omitempty"`
	LicenseKey      string             `json:"license_key"`
	Plan            SubscriptionPlan   `json:"plan"`
	Status          SubscriptionStatus `json:"status"`
	MonthlyFee      *float64           `json:"monthly_fee,omitempty"`
	Currency        string             `json:"currency"`
	StartsAt        *time.Time         `json:"starts_at,omitempty"`
	ExpiresAt       *time.Time         `json:"expires_at,omitempty"`
	TrialExpiresAt  *time.Time         `json:"trial_expires_at,omitempty"`
	GracePeriodDays int                `json:"grace_period_days"`
	LastPaymentAt   *time.Time         `json:"last_payment_at,omitempty"`
	NextPaymentAt   *time.Time         `json:"next_payment_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// TenantThresholds carries the per-tenant alarm configuration. Created
// alongside the tenant with industry-standard defaults.
type TenantThresholds struct {
	TenantID       int64   `json:"tenant_id"`
	TempMin        float64 `json:"temp_min"`
	TempMax        float64 `json:"temp_max"`
	HumidityMax    float64 `json:"humidity_max"`
	PM25Warn       float64 `json:"pm25_warn"`
	PM25Crit       float64 `json:"pm25_crit"`
	PM10Warn       float64 `json:"pm10_warn"`
	PM10Crit       float64 `json:"pm10_crit"`
	IAQWarn        float64 `json:"iaq_warn"`
	IAQCrit        float64 `json:"iaq_crit"`
	DeviceOfflineS int     `json:"device_offline_s"`
	CameraOfflineS int     `json:"camera_offline_s"`
	NotifySMS      bool    `json:"notify_sms"`
	NotifyEmail    bool    `json:"notify_email"`
	NotifyWebhook  bool    `json:"notify_webhook"`
	WebhookURL     string  `json:"webhook_url,omitempty"`
}

// DefaultTenantThresholds returns the built-in defaults used when a
// tenant has no stored configuration.
func DefaultTenantThresholds(tenantID int64) TenantThresholds {
	return TenantThresholds{
		TenantID:       tenantID,
		TempMin:        15,
		TempMax:        35,
		HumidityMax:    70,
		PM25Warn:       12,
		PM25Crit:       35.4,
		PM10Warn:       54,
		PM10Crit:       154,
		IAQWarn:        100,
		IAQCrit:        150,
		DeviceOfflineS: 60,
		CameraOfflineS: 30,
	}
}

// LocationThresholds carries per-location overrides. A nil field means
// "inherit from the tenant".
type LocationThresholds struct {
	LocationID     int64    `json:"location_id"`
	TempMin        *float64 `json:"temp_min,omitempty"`
	TempMax        *float64 `json:"temp_max,omitempty"`
	HumidityMax    *float64 `json:"humidity_max,omitempty"`
	PM25Warn       *float64 `json:"pm25_warn,omitempty"`
	PM25Crit       *float64 `json:"pm25_crit,omitempty"`
	PM10Warn       *float64 `json:"pm10_warn,omitempty"`
	PM10Crit       *float64 `json:"pm10_crit,omitempty"`
	IAQWarn        *float64 `json:"iaq_warn,omitempty"`
	IAQCrit        *float64 `json:"iaq_crit,omitempty"`
	DeviceOfflineS *int     `json:"device_offline_s,omitempty"`
	CameraOfflineS *int     `json:"camera_offline_s,omitempty"`
}

// Alert is a persisted observation that a threshold was crossed.
type Alert struct {
	ID             int64         `json:"id"`
	TenantID       int64         `json:"tenant_id"`
	LocationID     *int64        `json:"location_id,omitempty"`
	DeviceID       *string       `json:"device_id,omitempty"`
	Type           AlertType     `json:"type"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
	TriggerValue   *float64      `json:"trigger_value,omitempty"`
	ThresholdValue *float64      `json:"threshold_value,omitempty"`
	IsAcknowledged bool          `json:"is_acknowledged"`
	AckedBy        *int64        `json:"acked_by,omitempty"`
	AckedAt        *time.Time    `json:"acked_at,omitempty"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	SMSSent        bool          `json:"sms_sent"`
	EmailSent      bool          `json:"email_sent"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Command is an outbound message telling a device to change behaviour.
type Command struct {
	ID           int64         `json:"id"`
	DeviceID     string        `json:"device_id"`
	TenantID     int64         `json:"tenant_id"`
	Command      DeviceCommand `json:"command"`
	Reason       string        `json:"reason,omitempty"`
	Payload      string        `json:"payload,omitempty"` // JSON object, stored verbatim
	Status       CommandStatus `json:"status"`
	SentAt       *time.Time    `json:"sent_at,omitempty"`
	AckedAt      *time.Time    `json:"acked_at,omitempty"`
	IssuerUserID *int64        `json:"issuer_user_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// FirmwareRelease is a content-addressed firmware binary record.
// Versions are strictly ordered by CreatedAt.
type FirmwareRelease struct {
	ID         int64     `json:"id"`
	Version    string    `json:"version"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	SHA256     string    `json:"sha256"`
	Notes      string    `json:"notes,omitempty"`
	UploaderID *int64    `json:"uploader_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditLog is an append-only operator action record.
type AuditLog struct {
	ID           int64     `json:"id"`
	TenantID     *int64    `json:"tenant_id,omitempty"`
	UserID       *int64    `json:"user_id,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	OldValue     string    `json:"old,omitempty"`
	NewValue     string    `json:"new,omitempty"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"ua,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
