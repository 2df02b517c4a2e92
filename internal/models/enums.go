package models

// TenantStatus is the subscription state of a whole workshop tenant.
type TenantStatus string

const (
	TenantTrial     TenantStatus = "trial"
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantExpired   TenantStatus = "expired"
)

// LocationStatus is the operational state of a pit.
type LocationStatus string

const (
	LocationActive      LocationStatus = "active"
	LocationDisabled    LocationStatus = "disabled"
	LocationMaintenance LocationStatus = "maintenance"
)

// DeviceStatus is the provisioning/licensing state of a gateway device.
type DeviceStatus string

const (
	DevicePending     DeviceStatus = "pending"
	DeviceActive      DeviceStatus = "active"
	DeviceDisabled    DeviceStatus = "disabled"
	DeviceSuspended   DeviceStatus = "suspended"
	DeviceMaintenance DeviceStatus = "maintenance"
)

// DeviceCommand names the commands a device understands.
type DeviceCommand string

const (
	CommandDisable        DeviceCommand = "DISABLE"
	CommandEnable         DeviceCommand = "ENABLE"
	CommandRestart        DeviceCommand = "RESTART"
	CommandUpdateFirmware DeviceCommand = "UPDATE_FIRMWARE"
	CommandSetInterval    DeviceCommand = "SET_INTERVAL"
)

// CommandStatus tracks an outbound command through its lifecycle.
type CommandStatus string

const (
	CommandPending      CommandStatus = "pending"
	CommandSent         CommandStatus = "sent"
	CommandAcknowledged CommandStatus = "acknowledged"
	CommandFailed       CommandStatus = "failed"
)

// SubscriptionPlan is the commercial plan of a device subscription.
type SubscriptionPlan string

const (
	PlanTrial    SubscriptionPlan = "trial"
	PlanBasic    SubscriptionPlan = "basic"
	PlanStandard SubscriptionPlan = "standard"
	PlanPremium  SubscriptionPlan = "premium"
)

// SubscriptionStatus gates whether a device's readings are accepted.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// AlertType is the fixed taxonomy of alert conditions.
type AlertType string

const (
	AlertTempTooLow            AlertType = "temp_too_low"
	AlertTempTooHigh           AlertType = "temp_too_high"
	AlertHumidityTooHigh       AlertType = "humidity_too_high"
	AlertHighPM25              AlertType = "high_pm25"
	AlertHighPM10              AlertType = "high_pm10"
	AlertHighIAQ               AlertType = "high_iaq"
	AlertDeviceOffline         AlertType = "device_offline"
	AlertCameraOffline         AlertType = "camera_offline"
	AlertLicenseInvalid        AlertType = "license_invalid"
	AlertSubscriptionExpiring  AlertType = "subscription_expiring"
	AlertSubscriptionSuspended AlertType = "subscription_suspended"
)

// AlertSeverity ranks alerts for display and notification routing.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// SensorStatus classifies a single signal against its thresholds.
type SensorStatus string

const (
	StatusGood     SensorStatus = "good"
	StatusWarning  SensorStatus = "warning"
	StatusCritical SensorStatus = "critical"
	StatusUnknown  SensorStatus = "unknown"
)

// UserRole scopes what a session is allowed to subscribe to.
type UserRole string

const (
	RoleSuperAdmin UserRole = "super_admin"
	RoleOwner      UserRole = "owner"
	RoleStaff      UserRole = "staff"
	RoleCustomer   UserRole = "customer"
)

// OperatorRole reports whether a role may hold tenant-scoped
// subscriptions on the realtime hub.
func OperatorRole(r UserRole) bool {
	switch r {
	case RoleSuperAdmin, RoleOwner, RoleStaff:
		return true
	}
	return false
}

// Known sensor type codes.
const (
	SensorDHT22   = "DHT22"
	SensorDHT11   = "DHT11"
	SensorPMS5003 = "PMS5003"
	SensorBME680  = "BME680"
	SensorBME688  = "BME688"
)
