// Package lifecycle runs the periodic subscription and fleet health
// sweeps that feed the license gate.
package lifecycle

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/commands"
	"github.com/pitsense/pitsense/internal/identity"
	"github.com/pitsense/pitsense/internal/models"
	"github.com/pitsense/pitsense/internal/store"
	"github.com/pitsense/pitsense/internal/websocket"
)

const (
	// expiringWindow is how far ahead expiry warnings look.
	expiringWindow = 7 * 24 * time.Hour
	// expiringDedupe is the per-subscription warning window.
	expiringDedupe = 24 * time.Hour
)

// Broadcaster is the hub surface the sweeper emits fleet events to.
type Broadcaster interface {
	BroadcastToTenant(tenantID int64, ev websocket.Event)
	BroadcastToLocation(locationID int64, ev websocket.Event)
}

// Sweeper owns the periodic lifecycle passes. Each unit of work is
// isolated; one failure does not stop the sweep.
type Sweeper struct {
	store      *store.Store
	dispatcher *commands.Dispatcher
	hub        Broadcaster
	clock      identity.Clock

	interval         time.Duration
	fallbackOfflineS int
}

// NewSweeper wires the sweeper.
func NewSweeper(s *store.Store, dispatcher *commands.Dispatcher, hub Broadcaster, clock identity.Clock, interval time.Duration, fallbackOfflineS int) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		store:            s,
		dispatcher:       dispatcher,
		hub:              hub,
		clock:            clock,
		interval:         interval,
		fallbackOfflineS: fallbackOfflineS,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs every lifecycle pass exactly once.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	s.expireDue(ctx)
	s.suspendGraceExceeded(ctx)
	s.warnExpiring(ctx)
	s.sweepOfflineDevices(ctx)
}

// expireDue transitions active subscriptions past their expiry.
func (s *Sweeper) expireDue(ctx context.Context) {
	now := s.clock.Now()
	subs, err := s.store.ListExpiredActive(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Expiry sweep query failed")
		return
	}
	for _, sub := range subs {
		if err := s.store.SetSubscriptionStatus(ctx, sub.ID, models.SubscriptionExpired); err != nil {
			log.Error().Err(err).Int64("subscriptionId", sub.ID).Msg("Failed to expire subscription")
			continue
		}
		log.Info().
			Int64("subscriptionId", sub.ID).
			Str("licenseKey", identity.MaskLicenseKey(sub.LicenseKey)).
			Msg("Subscription expired")
	}
}

// suspendGraceExceeded suspends expired subscriptions past their grace
// period and disables any bound device.
func (s *Sweeper) suspendGraceExceeded(ctx context.Context) {
	now := s.clock.Now()
	subs, err := s.store.ListGraceExceeded(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Grace sweep query failed")
		return
	}
	for _, sub := range subs {
		if err := s.store.SetSubscriptionStatus(ctx, sub.ID, models.SubscriptionSuspended); err != nil {
			log.Error().Err(err).Int64("subscriptionId", sub.ID).Msg("Failed to suspend subscription")
			continue
		}
		if sub.DeviceID == nil {
			continue
		}
		if err := s.store.SetDeviceStatus(ctx, *sub.DeviceID, models.DeviceSuspended, now); err != nil {
			log.Error().Err(err).Str("deviceId", *sub.DeviceID).Msg("Failed to suspend device")
			continue
		}
		if _, err := s.dispatcher.Send(ctx, commands.SendRequest{
			DeviceID: *sub.DeviceID,
			TenantID: sub.TenantID,
			Command:  models.CommandDisable,
			Reason:   "Subscription suspended",
		}); err != nil {
			log.Warn().Err(err).Str("deviceId", *sub.DeviceID).Msg("Failed to dispatch DISABLE for suspended subscription")
		}
		log.Info().
			Int64("subscriptionId", sub.ID).
			Str("deviceId", *sub.DeviceID).
			Msg("Subscription suspended after grace period")
	}
}

// warnExpiring emits a subscription_expiring alert once per
// subscription per dedupe window.
func (s *Sweeper) warnExpiring(ctx context.Context) {
	now := s.clock.Now()
	subs, err := s.store.ListExpiringWithin(ctx, now, expiringWindow)
	if err != nil {
		log.Error().Err(err).Msg("Expiring sweep query failed")
		return
	}
	for _, sub := range subs {
		seen, err := s.store.HasAlertSince(ctx, sub.TenantID, sub.DeviceID, models.AlertSubscriptionExpiring, now.Add(-expiringDedupe))
		if err != nil {
			log.Error().Err(err).Int64("subscriptionId", sub.ID).Msg("Expiring dedupe query failed")
			continue
		}
		if seen {
			continue
		}

		days := int(sub.ExpiresAt.Sub(now).Hours() / 24)
		alert := models.Alert{
			TenantID: sub.TenantID,
			DeviceID: sub.DeviceID,
			Type:     models.AlertSubscriptionExpiring,
			Severity: models.SeverityWarning,
			Message:  expiringMessage(identity.MaskLicenseKey(sub.LicenseKey), days),
		}
		if err := s.store.InsertAlert(ctx, &alert, now); err != nil {
			log.Error().Err(err).Int64("subscriptionId", sub.ID).Msg("Failed to persist expiry warning")
			continue
		}
		s.hub.BroadcastToTenant(sub.TenantID, websocket.Event{Event: websocket.EventAlert, Data: &alert})
	}
}

// sweepOfflineDevices marks devices offline when their last_seen is
// older than the tenant threshold, emitting one device_offline alert
// under the normal cooldown.
func (s *Sweeper) sweepOfflineDevices(ctx context.Context) {
	now := s.clock.Now()
	devices, err := s.store.ListStaleOnlineDevices(ctx, now, s.fallbackOfflineS)
	if err != nil {
		log.Error().Err(err).Msg("Offline sweep query failed")
		return
	}
	for _, d := range devices {
		if err := s.store.MarkDeviceOffline(ctx, d.DeviceID, now); err != nil {
			log.Error().Err(err).Str("deviceId", d.DeviceID).Msg("Failed to mark device offline")
			continue
		}
		if d.TenantID == nil {
			continue
		}

		deviceID := d.DeviceID
		alert := models.Alert{
			TenantID:   *d.TenantID,
			LocationID: d.LocationID,
			DeviceID:   &deviceID,
			Type:       models.AlertDeviceOffline,
			Severity:   models.SeverityWarning,
			Message:    "Device " + deviceID + " went offline",
		}
		suppressed, err := s.store.HasUnacknowledgedSince(ctx, deviceID, d.LocationID, models.AlertDeviceOffline, now.Add(-5*time.Minute))
		if err == nil && !suppressed {
			if err := s.store.InsertAlert(ctx, &alert, now); err != nil {
				log.Error().Err(err).Str("deviceId", deviceID).Msg("Failed to persist offline alert")
			}
		}

		ev := websocket.Event{Event: websocket.EventDeviceOffline, Data: map[string]any{
			"device_id":   deviceID,
			"location_id": d.LocationID,
			"last_seen":   d.LastSeen,
		}}
		s.hub.BroadcastToTenant(*d.TenantID, ev)
		if d.LocationID != nil {
			s.hub.BroadcastToLocation(*d.LocationID, ev)
		}
		log.Info().Str("deviceId", deviceID).Msg("Device marked offline")
	}
}

func expiringMessage(maskedKey string, days int) string {
	switch {
	case days <= 0:
		return "Subscription " + maskedKey + " expires today"
	case days == 1:
		return "Subscription " + maskedKey + " expires in 1 day"
	default:
		return "Subscription " + maskedKey + " expires in " + strconv.Itoa(days) + " days"
	}
}
