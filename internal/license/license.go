// Package license implements the authorization gate deciding whether a
// device's readings are accepted.
package license

import (
	"time"

	"github.com/pitsense/pitsense/internal/models"
)

// Reason names why a (device_id, license_key) tuple was rejected.
type Reason string

const (
	ReasonUnknownDevice         Reason = "UnknownDevice"
	ReasonKeyMismatch           Reason = "KeyMismatch"
	ReasonDeviceDisabled        Reason = "DeviceDisabled"
	ReasonDeviceSuspended       Reason = "DeviceSuspended"
	ReasonNoSubscription        Reason = "NoSubscription"
	ReasonSubscriptionExpired   Reason = "SubscriptionExpired"
	ReasonSubscriptionSuspended Reason = "SubscriptionSuspended"
	ReasonLicenseExpired        Reason = "LicenseExpired"
)

// Message renders the reason as sent to the device with a DISABLE
// command.
func (r Reason) Message() string {
	switch r {
	case ReasonUnknownDevice:
		return "Unknown device"
	case ReasonKeyMismatch:
		return "License key mismatch"
	case ReasonDeviceDisabled:
		return "Device disabled"
	case ReasonDeviceSuspended:
		return "Device suspended"
	case ReasonNoSubscription:
		return "No subscription"
	case ReasonSubscriptionExpired:
		return "Subscription expired"
	case ReasonSubscriptionSuspended:
		return "Subscription suspended"
	case ReasonLicenseExpired:
		return "License expired"
	default:
		return string(r)
	}
}

// Decision is the gate's verdict. When Valid, Device carries the
// authorized device and its tenant/location binding.
type Decision struct {
	Valid  bool
	Reason Reason
	Device *models.Device
}

// TenantID returns the authorized tenant, or 0 when the decision does
// not carry one.
func (d Decision) TenantID() int64 {
	if d.Device == nil || d.Device.TenantID == nil {
		return 0
	}
	return *d.Device.TenantID
}

// LocationID returns the authorized location, or nil.
func (d Decision) LocationID() *int64 {
	if d.Device == nil {
		return nil
	}
	return d.Device.LocationID
}

// Decide is the pure authorization function. device and sub may be nil
// (not found); now is the evaluation instant. It has no side effects
// and short-circuits on the first failing check.
func Decide(device *models.Device, sub *models.Subscription, licenseKey string, now time.Time) Decision {
	if device == nil {
		return Decision{Reason: ReasonUnknownDevice}
	}
	if device.LicenseKey == nil || subtleNeq(*device.LicenseKey, licenseKey) {
		return Decision{Reason: ReasonKeyMismatch, Device: device}
	}
	switch device.Status {
	case models.DeviceDisabled:
		return Decision{Reason: ReasonDeviceDisabled, Device: device}
	case models.DeviceSuspended:
		return Decision{Reason: ReasonDeviceSuspended, Device: device}
	}
	if sub == nil {
		return Decision{Reason: ReasonNoSubscription, Device: device}
	}
	switch sub.Status {
	case models.SubscriptionExpired:
		return Decision{Reason: ReasonSubscriptionExpired, Device: device}
	case models.SubscriptionSuspended:
		return Decision{Reason: ReasonSubscriptionSuspended, Device: device}
	}
	if sub.ExpiresAt != nil && sub.ExpiresAt.Before(now) {
		return Decision{Reason: ReasonLicenseExpired, Device: device}
	}
	return Decision{Valid: true, Device: device}
}

// subtleNeq compares license keys byte for byte.
func subtleNeq(a, b string) bool {
	if len(a) != len(b) {
		return true
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff != 0
}
