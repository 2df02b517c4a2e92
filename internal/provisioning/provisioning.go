// Package provisioning registers announced devices and drives the
// operator approval cycle.
package provisioning

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/commands"
	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/identity"
	"github.com/pitsense/pitsense/internal/models"
	"github.com/pitsense/pitsense/internal/store"
)

// Handler owns device registration and approval.
type Handler struct {
	store      *store.Store
	dispatcher *commands.Dispatcher
	clock      identity.Clock

	trialDays       int
	gracePeriodDays int
}

// NewHandler wires the provisioning handler.
func NewHandler(s *store.Store, dispatcher *commands.Dispatcher, clock identity.Clock, trialDays, gracePeriodDays int) *Handler {
	return &Handler{
		store:           s,
		dispatcher:      dispatcher,
		clock:           clock,
		trialDays:       trialDays,
		gracePeriodDays: gracePeriodDays,
	}
}

// HandleAnnounce processes a device announcement: unknown devices are
// registered pending, pending devices get their volatile attributes
// refreshed, provisioned devices are ignored.
func (h *Handler) HandleAnnounce(ctx context.Context, payload []byte) error {
	var msg struct {
		DeviceID        string `json:"device_id"`
		MAC             string `json:"mac,omitempty"`
		FirmwareVersion string `json:"firmware_version,omitempty"`
		IP              string `json:"ip,omitempty"`
		SensorType      string `json:"sensor_type,omitempty"`
		AQSensorType    string `json:"aq_sensor_type,omitempty"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil || msg.DeviceID == "" {
		log.Warn().Msg("Dropping malformed provisioning announcement")
		return nil
	}

	now := h.clock.Now()
	device, err := h.store.GetDevice(ctx, msg.DeviceID)
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		d := &models.Device{
			DeviceID:              msg.DeviceID,
			PrimarySensorType:     msg.SensorType,
			FirmwareVersion:       msg.FirmwareVersion,
			MAC:                   msg.MAC,
			IP:                    msg.IP,
			ReportIntervalSeconds: 60,
		}
		if d.PrimarySensorType == "" {
			d.PrimarySensorType = models.SensorDHT22
		}
		if msg.AQSensorType != "" {
			d.AQSensorType = &msg.AQSensorType
		}
		if err := h.store.CreateAnnouncedDevice(ctx, d, now); err != nil {
			// Two near-simultaneous announcements race on the
			// unique device_id; the loser is a refresh.
			if stderrors.Is(err, errors.ErrConflict) {
				return h.store.RefreshAnnouncedDevice(ctx, msg.DeviceID, msg.IP, msg.FirmwareVersion, now)
			}
			return err
		}
		log.Info().Str("deviceId", msg.DeviceID).Msg("New device registered, awaiting approval")
		return nil

	case err != nil:
		return err

	case device.Status == models.DevicePending:
		return h.store.RefreshAnnouncedDevice(ctx, msg.DeviceID, msg.IP, msg.FirmwareVersion, now)

	default:
		// Already provisioned; the announcement carries nothing new.
		return nil
	}
}

// Approve mints a license, activates the device under the tenant,
// creates the trial subscription, and publishes the retained
// provisioning config. Duplicate approvals fail with Conflict via the
// unique license key.
func (h *Handler) Approve(ctx context.Context, deviceID string, tenantID int64, locationID *int64, actorID *int64) (*models.Device, error) {
	const op = "provisioning.Approve"
	now := h.clock.Now()

	device, err := h.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.Status != models.DevicePending {
		return nil, errors.Ef(errors.KindConflict, op, "device %s is %s, not pending", deviceID, device.Status)
	}
	if _, err := h.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	licenseKey := identity.NewLicenseKey()
	trialExpires := now.AddDate(0, 0, h.trialDays)

	err = h.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.ActivateDevice(ctx, deviceID, licenseKey, tenantID, locationID, now); err != nil {
			return err
		}
		sub := &models.Subscription{
			TenantID:        tenantID,
			DeviceID:        &deviceID,
			LicenseKey:      licenseKey,
			Plan:            models.PlanTrial,
			Status:          models.SubscriptionActive,
			Currency:        "EUR",
			StartsAt:        &now,
			ExpiresAt:       &trialExpires,
			TrialExpiresAt:  &trialExpires,
			GracePeriodDays: h.gracePeriodDays,
		}
		if err := q.CreateSubscription(ctx, sub, now); err != nil {
			return err
		}
		return q.InsertAudit(ctx, &models.AuditLog{
			TenantID:     &tenantID,
			UserID:       actorID,
			Action:       "device.approve",
			ResourceType: "device",
			ResourceID:   deviceID,
			NewValue:     fmt.Sprintf(`{"license_key":%q,"tenant_id":%d}`, identity.MaskLicenseKey(licenseKey), tenantID),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	if err := h.dispatcher.PublishProvisioningConfig(ctx, deviceID, licenseKey, tenantID, locationID); err != nil {
		// The device stays approved; it can pull the retained config
		// on the next publish or announce again.
		log.Warn().Err(err).Str("deviceId", deviceID).Msg("Provisioning config publish failed")
	}

	log.Info().
		Str("deviceId", deviceID).
		Int64("tenantId", tenantID).
		Str("licenseKey", identity.MaskLicenseKey(licenseKey)).
		Msg("Device approved")

	return h.store.GetDevice(ctx, deviceID)
}

// Reject marks a pending device suspended so it stops announcing into
// the approval queue.
func (h *Handler) Reject(ctx context.Context, deviceID string, actorID *int64) error {
	const op = "provisioning.Reject"
	now := h.clock.Now()

	device, err := h.store.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if device.Status != models.DevicePending {
		return errors.Ef(errors.KindConflict, op, "device %s is %s, not pending", deviceID, device.Status)
	}

	return h.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.SetDeviceStatus(ctx, deviceID, models.DeviceSuspended, now); err != nil {
			return err
		}
		return q.InsertAudit(ctx, &models.AuditLog{
			UserID:       actorID,
			Action:       "device.reject",
			ResourceType: "device",
			ResourceID:   deviceID,
		}, now)
	})
}

// Unassign clears the license and tenant binding and cancels the
// subscription. The device returns to pending and a new key is minted
// on the next approval.
func (h *Handler) Unassign(ctx context.Context, deviceID string, actorID *int64) error {
	now := h.clock.Now()

	device, err := h.store.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	return h.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.ClearSubscriptionDevice(ctx, deviceID); err != nil {
			return err
		}
		if err := q.UnassignDevice(ctx, deviceID, now); err != nil {
			return err
		}
		audit := &models.AuditLog{
			TenantID:     device.TenantID,
			UserID:       actorID,
			Action:       "device.unassign",
			ResourceType: "device",
			ResourceID:   deviceID,
		}
		if device.LicenseKey != nil {
			audit.OldValue = fmt.Sprintf(`{"license_key":%q}`, identity.MaskLicenseKey(*device.LicenseKey))
		}
		return q.InsertAudit(ctx, audit, now)
	})
}
