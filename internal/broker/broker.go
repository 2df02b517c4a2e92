// Package broker maintains the long-lived MQTT connection: fixed-topic
// subscriptions with resubscribe on reconnect, QoS-1 publishing, and a
// bounded handoff queue toward the ingest pipeline.
package broker

import (
	"context"
	"crypto/tls"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/config"
	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/metrics"
)

const (
	publishTimeout = 5 * time.Second
	drainTimeout   = 10 * time.Second
)

// Message is one inbound broker message handed to the ingest pipeline.
// Ack must be called once the message is fully handled; leaving a
// QoS-1 message unacknowledged makes the broker redeliver it.
type Message struct {
	Topic   string
	Payload []byte
	Ack     func()
}

// Client is the process-wide broker singleton. All publishes route
// through it; inbound messages flow out of Messages().
type Client struct {
	cfg     config.Broker
	cm      *autopaho.ConnectionManager
	inbound chan Message

	mu      sync.Mutex
	started bool
}

// New builds a client with a bounded inbound queue. Call Start before
// using Publish.
func New(cfg config.Broker, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Client{
		cfg:     cfg,
		inbound: make(chan Message, queueSize),
	}
}

// Messages returns the inbound handoff queue. The channel is never
// closed; consumers select on their own context.
func (c *Client) Messages() <-chan Message {
	return c.inbound
}

// Start connects to the broker and keeps the connection alive until
// ctx is cancelled. Subscriptions are re-established on every
// (re-)connect because autopaho does not resubscribe automatically.
func (c *Client) Start(ctx context.Context) error {
	const op = "broker.Start"

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	brokerURL, err := url.Parse(c.cfg.BrokerURL())
	if err != nil {
		return errors.E(errors.KindValidation, op, err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     uint16(c.cfg.KeepaliveS),
		ReconnectBackoff:              autopaho.NewConstantBackoff(time.Duration(c.cfg.ReconnectBackoffS) * time.Second),
		ConnectUsername:               c.cfg.User,
		ConnectPassword:               []byte(c.cfg.Password),
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			log.Info().Str("broker", brokerURL.String()).Msg("Connected to broker")
			metrics.BrokerReconnects.Inc()
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			c.subscribe(subCtx, cm)
		},
		OnConnectError: func(err error) {
			log.Warn().Err(err).Msg("Broker connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "pitsense-" + uuid.NewString()[:8],
			// Acks are issued by the ingest pipeline after the
			// message transaction commits.
			EnableManualAcknowledgment: true,
		},
	}
	if c.cfg.TLS {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	pahoCfg.OnPublishReceived = []func(paho.PublishReceived) (bool, error){
		func(pr paho.PublishReceived) (bool, error) {
			c.receive(pr)
			return true, nil
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return errors.E(errors.KindUpstreamUnavailable, op, err)
	}
	c.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background
		log.Warn().Err(err).Msg("Initial broker connection timed out, retrying in background")
	}
	return nil
}

// receive validates an inbound packet and hands it to the ingest
// queue. Overflow drops the message with a counted warning and an
// immediate ack so the broker does not redeliver junk forever.
func (c *Client) receive(pr paho.PublishReceived) {
	pkt := pr.Packet
	ack := func() {
		if err := pr.Client.Ack(pkt); err != nil {
			log.Debug().Err(err).Str("topic", pkt.Topic).Msg("Message ack failed")
		}
	}

	if !utf8.Valid(pkt.Payload) {
		log.Warn().Str("topic", pkt.Topic).Msg("Dropping non-UTF-8 broker message")
		metrics.MessagesRejected.WithLabelValues("encoding").Inc()
		ack()
		return
	}

	msg := Message{Topic: pkt.Topic, Payload: pkt.Payload, Ack: ack}
	select {
	case c.inbound <- msg:
		metrics.IngestQueueDepth.Set(float64(len(c.inbound)))
	default:
		log.Warn().Str("topic", pkt.Topic).Msg("Ingest queue full, dropping message")
		metrics.MessagesRejected.WithLabelValues("overflow").Inc()
		ack()
	}
}

func (c *Client) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	filters := []string{FilterSensors, FilterStatus, FilterAnnounce}
	opts := make([]paho.SubscribeOptions, 0, len(filters))
	for _, f := range filters {
		opts = append(opts, paho.SubscribeOptions{Topic: f, QoS: c.cfg.QoS})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		log.Error().Err(err).Strs("topics", filters).Msg("Broker subscribe failed")
		return
	}
	log.Info().Strs("topics", filters).Msg("Subscribed to broker topics")
}

// Publish sends a payload at the configured QoS with a bounded
// per-call deadline.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	const op = "broker.Publish"
	if c.cm == nil {
		return errors.Ef(errors.KindUpstreamUnavailable, op, "broker client not started")
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err := c.cm.Publish(pubCtx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     c.cfg.QoS,
		Retain:  retain,
	})
	if err != nil {
		return errors.E(errors.KindUpstreamUnavailable, op, err)
	}
	return nil
}

// Stop disconnects cleanly, allowing a bounded drain of in-flight
// traffic. Idempotent.
func (c *Client) Stop() error {
	if c.cm == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := c.cm.Disconnect(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
