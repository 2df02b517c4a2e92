// Package commands dispatches device-directed commands over the
// broker: persist first, publish second, then track the outcome.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/broker"
	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/identity"
	"github.com/pitsense/pitsense/internal/metrics"
	"github.com/pitsense/pitsense/internal/models"
	"github.com/pitsense/pitsense/internal/store"
)

// Publisher is the broker-facing surface the dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

// Dispatcher is the single MQTT producer in the system.
type Dispatcher struct {
	store *store.Store
	pub   Publisher
	clock identity.Clock
}

// NewDispatcher wires the dispatcher to its store and broker client.
func NewDispatcher(s *store.Store, pub Publisher, clock identity.Clock) *Dispatcher {
	return &Dispatcher{store: s, pub: pub, clock: clock}
}

// wireCommand is the outbound command body.
type wireCommand struct {
	Command  models.DeviceCommand `json:"command"`
	Reason   string               `json:"reason"`
	Payload  json.RawMessage      `json:"payload,omitempty"`
	IssuedAt string               `json:"issued_at"`
}

// SendRequest describes one command to dispatch.
type SendRequest struct {
	DeviceID string
	TenantID int64
	Command  models.DeviceCommand
	Reason   string
	Payload  json.RawMessage
	IssuerID *int64
}

// Send persists the command as pending, publishes it, and records the
// outcome. A persistence failure blocks the publish entirely; a
// publish failure leaves the row failed and is returned to the caller.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (*models.Command, error) {
	const op = "commands.Send"
	now := d.clock.Now()

	cmd := &models.Command{
		DeviceID:     req.DeviceID,
		TenantID:     req.TenantID,
		Command:      req.Command,
		Reason:       req.Reason,
		Payload:      string(req.Payload),
		IssuerUserID: req.IssuerID,
	}
	if err := d.store.InsertCommand(ctx, cmd, now); err != nil {
		return nil, err
	}

	body, err := json.Marshal(wireCommand{
		Command:  req.Command,
		Reason:   req.Reason,
		Payload:  req.Payload,
		IssuedAt: now.Format(time.RFC3339),
	})
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}

	topic := broker.CommandTopic(req.TenantID, req.DeviceID)
	if err := d.pub.Publish(ctx, topic, body, false); err != nil {
		if markErr := d.store.MarkCommandFailed(ctx, cmd.ID); markErr != nil {
			log.Error().Err(markErr).Int64("commandId", cmd.ID).Msg("Failed to record command failure")
		}
		cmd.Status = models.CommandFailed
		metrics.CommandsPublished.WithLabelValues(string(req.Command), "failed").Inc()
		return cmd, err
	}

	if err := d.store.MarkCommandSent(ctx, cmd.ID, d.clock.Now()); err != nil {
		return cmd, err
	}
	cmd.Status = models.CommandSent
	sentAt := d.clock.Now()
	cmd.SentAt = &sentAt
	metrics.CommandsPublished.WithLabelValues(string(req.Command), "sent").Inc()

	log.Info().
		Str("deviceId", req.DeviceID).
		Str("command", string(req.Command)).
		Str("reason", req.Reason).
		Msg("Command dispatched")
	return cmd, nil
}

// provisionConfig is the retained provisioning payload a device reads
// after approval. Devices that predate the extra fields ignore them.
type provisionConfig struct {
	Command      string `json:"command"`
	LicenseKey   string `json:"license_key"`
	WorkshopID   int64  `json:"workshop_id"`
	PitID        *int64 `json:"pit_id"`
	MQTTTopic    string `json:"mqtt_topic,omitempty"`
	CommandTopic string `json:"command_topic,omitempty"`
	ApprovedAt   string `json:"approved_at,omitempty"`
}

// PublishProvisioningConfig pushes the retained provisioning config
// after device approval. No Command row is created.
func (d *Dispatcher) PublishProvisioningConfig(ctx context.Context, deviceID, licenseKey string, tenantID int64, locationID *int64) error {
	const op = "commands.PublishProvisioningConfig"
	now := d.clock.Now()

	cfg := provisionConfig{
		Command:      "PROVISION",
		LicenseKey:   licenseKey,
		WorkshopID:   tenantID,
		PitID:        locationID,
		CommandTopic: broker.CommandTopic(tenantID, deviceID),
		ApprovedAt:   now.Format(time.RFC3339),
	}
	if locationID != nil {
		cfg.MQTTTopic = fmt.Sprintf("workshop/%d/pit/%d/sensors", tenantID, *locationID)
	}

	body, err := json.Marshal(cfg)
	if err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	if err := d.pub.Publish(ctx, broker.ConfigTopic(deviceID), body, true); err != nil {
		return err
	}

	log.Info().
		Str("deviceId", deviceID).
		Str("licenseKey", identity.MaskLicenseKey(licenseKey)).
		Int64("tenantId", tenantID).
		Msg("Provisioning config published")
	return nil
}
