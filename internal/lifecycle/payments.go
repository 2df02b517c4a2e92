package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/commands"
	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/identity"
	"github.com/pitsense/pitsense/internal/models"
	"github.com/pitsense/pitsense/internal/store"
)

func commandEnable(deviceID string, tenantID int64) commands.SendRequest {
	return commands.SendRequest{
		DeviceID: deviceID,
		TenantID: tenantID,
		Command:  models.CommandEnable,
		Reason:   "Payment received",
	}
}

// RecordPayment extends the subscription expiry by 30 days per month
// paid, from the later of now and the current expiry, and re-enables a
// suspended device. Expiry only ever moves forward.
func (s *Sweeper) RecordPayment(ctx context.Context, subscriptionID int64, extendMonths int, actorID *int64) (*models.Subscription, error) {
	const op = "lifecycle.RecordPayment"
	if extendMonths < 1 {
		return nil, errors.Ef(errors.KindValidation, op, "extend_months must be at least 1")
	}

	now := s.clock.Now()
	sub, err := s.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	base := now
	if sub.ExpiresAt != nil && sub.ExpiresAt.After(base) {
		base = *sub.ExpiresAt
	}
	expiresAt := base.AddDate(0, 0, 30*extendMonths)
	nextPaymentAt := expiresAt.AddDate(0, 0, -sub.GracePeriodDays)

	deviceFound := false
	err = s.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.ApplyPayment(ctx, sub.ID, expiresAt, nextPaymentAt, now); err != nil {
			return err
		}
		if sub.DeviceID != nil {
			device, err := q.GetDevice(ctx, *sub.DeviceID)
			switch {
			case errors.KindOf(err) == errors.KindNotFound:
				// A dangling device binding never blocks the payment.
				log.Warn().Str("deviceId", *sub.DeviceID).Int64("subscriptionId", sub.ID).
					Msg("Subscription references a missing device, skipping re-enable")
			case err != nil:
				return err
			default:
				deviceFound = true
				if device.Status == models.DeviceSuspended {
					if err := q.SetDeviceStatus(ctx, device.DeviceID, models.DeviceActive, now); err != nil {
						return err
					}
				}
			}
		}
		return q.InsertAudit(ctx, &models.AuditLog{
			TenantID:     &sub.TenantID,
			UserID:       actorID,
			Action:       "subscription.payment",
			ResourceType: "subscription",
			ResourceID:   fmt.Sprintf("%d", sub.ID),
			NewValue:     fmt.Sprintf(`{"extend_months":%d,"expires_at":%q}`, extendMonths, expiresAt.Format(time.RFC3339)),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	// Re-enable the device on its side as well.
	if deviceFound {
		if _, err := s.dispatcher.Send(ctx, commandEnable(*sub.DeviceID, sub.TenantID)); err != nil {
			log.Warn().Err(err).Str("deviceId", *sub.DeviceID).Msg("Failed to dispatch ENABLE after payment")
		}
	}

	log.Info().
		Int64("subscriptionId", sub.ID).
		Str("licenseKey", identity.MaskLicenseKey(sub.LicenseKey)).
		Time("expiresAt", expiresAt).
		Msg("Payment recorded")

	return s.store.GetSubscription(ctx, sub.ID)
}
