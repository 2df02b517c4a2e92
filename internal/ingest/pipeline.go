// Package ingest consumes broker messages and runs them through the
// parse, authorize, persist, evaluate, fan-out pipeline.
package ingest

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pitsense/pitsense/internal/alerts"
	"github.com/pitsense/pitsense/internal/broker"
	"github.com/pitsense/pitsense/internal/commands"
	"github.com/pitsense/pitsense/internal/identity"
	"github.com/pitsense/pitsense/internal/license"
	"github.com/pitsense/pitsense/internal/metrics"
	"github.com/pitsense/pitsense/internal/models"
	"github.com/pitsense/pitsense/internal/store"
	"github.com/pitsense/pitsense/internal/websocket"
)

// Broadcaster is the hub surface the pipeline fans out to.
type Broadcaster interface {
	BroadcastToTenant(tenantID int64, ev websocket.Event)
	BroadcastToLocation(locationID int64, ev websocket.Event)
}

// AnnounceHandler receives provisioning announcements.
type AnnounceHandler interface {
	HandleAnnounce(ctx context.Context, payload []byte) error
}

// Pipeline is the ingest worker pool.
type Pipeline struct {
	store      *store.Store
	gate       *license.Gate
	engine     *alerts.Engine
	dispatcher *commands.Dispatcher
	hub        Broadcaster
	announce   AnnounceHandler
	clock      identity.Clock
}

// New wires the pipeline to its collaborators.
func New(s *store.Store, gate *license.Gate, engine *alerts.Engine, dispatcher *commands.Dispatcher, hub Broadcaster, announce AnnounceHandler, clock identity.Clock) *Pipeline {
	return &Pipeline{
		store:      s,
		gate:       gate,
		engine:     engine,
		dispatcher: dispatcher,
		hub:        hub,
		announce:   announce,
		clock:      clock,
	}
}

// Run consumes the broker queue on the given number of workers until
// ctx is cancelled. Per-device ordering is preserved by the broker's
// in-flight window; across devices there is no global order.
func (p *Pipeline) Run(ctx context.Context, messages <-chan broker.Message, workers int) error {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg := <-messages:
					metrics.IngestQueueDepth.Set(float64(len(messages)))
					p.dispatch(ctx, msg)
				}
			}
		})
	}
	return g.Wait()
}

// dispatch routes one message by topic and acks it unless a transient
// persistence failure asks the broker to redeliver.
func (p *Pipeline) dispatch(ctx context.Context, msg broker.Message) {
	kind, _ := broker.Classify(msg.Topic)

	var err error
	switch kind {
	case broker.KindSensors:
		err = p.handleSensors(ctx, msg.Payload)
	case broker.KindStatus:
		err = p.handleStatus(ctx, msg.Payload)
	case broker.KindAnnounce:
		err = p.announce.HandleAnnounce(ctx, msg.Payload)
	default:
		log.Warn().Str("topic", msg.Topic).Msg("Message on unexpected topic")
		metrics.MessagesRejected.WithLabelValues("topic").Inc()
	}

	if err != nil {
		// Leave unacked so the broker redelivers (at-least-once).
		log.Error().Err(err).Str("topic", msg.Topic).Msg("Message processing failed, leaving unacked")
		return
	}
	if msg.Ack != nil {
		msg.Ack()
	}
	metrics.MessagesIngested.WithLabelValues(kind.String()).Inc()
}

// handleSensors runs the full reading pipeline. Parse and gate
// rejections are recovered locally and never surface as errors.
func (p *Pipeline) handleSensors(ctx context.Context, payload []byte) error {
	msg, ok := parseSensorMessage(payload)
	if !ok {
		log.Warn().Msg("Dropping malformed sensor message")
		metrics.MessagesRejected.WithLabelValues("parse").Inc()
		return nil
	}

	decision, err := p.gate.Authorize(ctx, msg.DeviceID, msg.LicenseKey)
	if err != nil {
		return err
	}
	if !decision.Valid {
		metrics.MessagesRejected.WithLabelValues("unauthorized").Inc()
		p.rejectDevice(ctx, msg.DeviceID, decision)
		return nil
	}

	device := decision.Device
	reading := p.buildReading(ctx, device, msg)
	now := p.clock.Now()

	var fired []models.Alert
	err = p.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.InsertReading(ctx, reading, now); err != nil {
			return err
		}
		if err := q.UpdateDeviceHealth(ctx, device.DeviceID, now); err != nil {
			return err
		}
		var evalErr error
		fired, evalErr = p.engine.Evaluate(ctx, q, reading)
		return evalErr
	})
	if err != nil {
		return err
	}
	metrics.ReadingsPersisted.Inc()

	// Fan-out happens after commit and never blocks ingest.
	p.fanOut(reading, fired)
	return nil
}

// rejectDevice issues a DISABLE command carrying the rejection reason.
// The reading is not persisted and device health is untouched.
func (p *Pipeline) rejectDevice(ctx context.Context, deviceID string, decision license.Decision) {
	if _, err := p.dispatcher.Send(ctx, commands.SendRequest{
		DeviceID: deviceID,
		TenantID: decision.TenantID(),
		Command:  models.CommandDisable,
		Reason:   decision.Reason.Message(),
	}); err != nil {
		log.Warn().Err(err).
			Str("deviceId", deviceID).
			Str("reason", string(decision.Reason)).
			Msg("Failed to dispatch DISABLE for rejected device")
	}
}

// buildReading populates the reading columns gated by the device's
// declared sensor capabilities; unrelated columns stay null. The
// device configuration wins over any sensor_type in the body.
func (p *Pipeline) buildReading(ctx context.Context, device *models.Device, msg *sensorMessage) *models.Reading {
	caps := p.capabilities(ctx, device)

	r := &models.Reading{
		DeviceID: device.DeviceID,
		IsValid:  true,
	}
	if device.TenantID != nil {
		r.TenantID = *device.TenantID
	}
	if device.LocationID != nil {
		r.LocationID = *device.LocationID
	}
	primary := device.PrimarySensorType
	r.PrimarySensorType = &primary
	r.AQSensorType = device.AQSensorType
	r.DeviceTimestamp = msg.Timestamp()

	if caps&models.CapTemperature != 0 {
		r.Temperature = msg.Float("temperature")
	}
	if caps&models.CapHumidity != 0 {
		r.Humidity = msg.Float("humidity")
	}
	if caps&models.CapPressure != 0 {
		r.Pressure = msg.Float("pressure")
	}
	if caps&models.CapGasResistance != 0 {
		r.GasResistance = msg.Float("gas_resistance")
	}
	if caps&models.CapIAQ != 0 {
		r.IAQ = msg.Float("iaq")
		r.IAQAccuracy = msg.Int("iaq_accuracy")
	}
	if caps&models.CapParticulates != 0 {
		r.PM1 = msg.Float("pm1")
		r.PM25 = msg.Float("pm25")
		r.PM10 = msg.Float("pm10")
		r.Particles03um = msg.Int("particles_03um")
		r.Particles05um = msg.Int("particles_05um")
		r.Particles10um = msg.Int("particles_10um")
		r.Particles25um = msg.Int("particles_25um")
		r.Particles50um = msg.Int("particles_50um")
		r.Particles100um = msg.Int("particles_100um")
	}
	return r
}

// capabilities unions the catalog capabilities of the device's primary
// and air-quality sensors. An unknown code falls back to accepting
// every field group so a stale catalog never loses data.
func (p *Pipeline) capabilities(ctx context.Context, device *models.Device) uint32 {
	var caps uint32
	known := true

	if st, err := p.store.GetSensorType(ctx, device.PrimarySensorType); err == nil {
		caps |= st.Capabilities
	} else {
		known = false
	}
	if device.AQSensorType != nil {
		if st, err := p.store.GetSensorType(ctx, *device.AQSensorType); err == nil {
			caps |= st.Capabilities
		} else {
			known = false
		}
	}
	if !known && caps == 0 {
		return ^uint32(0)
	}
	if !known {
		caps = ^uint32(0)
	}
	return caps
}

// fanOut emits one sensor_update plus one event per fired alert, each
// to the tenant and location partitions.
func (p *Pipeline) fanOut(r *models.Reading, fired []models.Alert) {
	update := websocket.Event{Event: websocket.EventSensorUpdate, Data: r}
	p.hub.BroadcastToTenant(r.TenantID, update)
	p.hub.BroadcastToLocation(r.LocationID, update)

	for i := range fired {
		ev := websocket.Event{Event: websocket.EventAlert, Data: &fired[i]}
		p.hub.BroadcastToTenant(r.TenantID, ev)
		p.hub.BroadcastToLocation(r.LocationID, ev)
	}
}

// handleStatus refreshes device liveness and applies command acks. No
// reading is written.
func (p *Pipeline) handleStatus(ctx context.Context, payload []byte) error {
	var msg statusMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.DeviceID == "" {
		log.Warn().Msg("Dropping malformed status message")
		metrics.MessagesRejected.WithLabelValues("parse").Inc()
		return nil
	}

	now := p.clock.Now()
	if err := p.store.TouchDevice(ctx, msg.DeviceID, now); err != nil {
		return err
	}

	if msg.Ack != nil {
		if err := p.store.AcknowledgeCommand(ctx, *msg.Ack, msg.DeviceID, now); err != nil {
			// A stale or repeated ack is not a failure.
			log.Debug().Err(err).
				Str("deviceId", msg.DeviceID).
				Int64("commandId", *msg.Ack).
				Msg("Command ack ignored")
		}
	}
	return nil
}
