// Package metrics exposes Prometheus instrumentation for the ingest
// and dispatch pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesIngested counts inbound broker messages by topic class.
	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitsense",
		Name:      "messages_ingested_total",
		Help:      "Inbound broker messages accepted for processing.",
	}, []string{"topic"})

	// MessagesRejected counts messages dropped before persistence.
	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitsense",
		Name:      "messages_rejected_total",
		Help:      "Inbound messages rejected before persistence.",
	}, []string{"reason"})

	// ReadingsPersisted counts committed sensor readings.
	ReadingsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitsense",
		Name:      "readings_persisted_total",
		Help:      "Sensor readings committed to storage.",
	})

	// AlertsFired counts persisted alerts by type.
	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitsense",
		Name:      "alerts_fired_total",
		Help:      "Alerts persisted after threshold evaluation.",
	}, []string{"type", "severity"})

	// AlertsSuppressed counts alerts withheld by the cooldown.
	AlertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitsense",
		Name:      "alerts_suppressed_total",
		Help:      "Alerts suppressed by the anti-flap cooldown.",
	})

	// CommandsPublished counts outbound commands by result.
	CommandsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitsense",
		Name:      "commands_published_total",
		Help:      "Outbound device commands by publish result.",
	}, []string{"command", "result"})

	// BrokerReconnects counts broker (re)connections.
	BrokerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitsense",
		Name:      "broker_reconnects_total",
		Help:      "Successful broker connection establishments.",
	})

	// IngestQueueDepth tracks the pending ingest channel depth.
	IngestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pitsense",
		Name:      "ingest_queue_depth",
		Help:      "Messages waiting in the ingest handoff queue.",
	})

	// HubSessions tracks connected realtime sessions.
	HubSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pitsense",
		Name:      "hub_sessions",
		Help:      "Currently connected realtime hub sessions.",
	})

	// HubEventsDropped counts events lost to slow or dead subscribers.
	HubEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitsense",
		Name:      "hub_events_dropped_total",
		Help:      "Hub events dropped because a subscriber send failed.",
	})
)
