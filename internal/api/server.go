// Package api exposes the HTTP surface: realtime upgrade, operator
// device actions, firmware registry, payments, and fleet queries.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pitsense/pitsense/internal/auth"
	"github.com/pitsense/pitsense/internal/firmware"
	"github.com/pitsense/pitsense/internal/identity"
	"github.com/pitsense/pitsense/internal/lifecycle"
	"github.com/pitsense/pitsense/internal/provisioning"
	"github.com/pitsense/pitsense/internal/store"
	"github.com/pitsense/pitsense/internal/websocket"
)

// Server bundles the HTTP handlers and their collaborators.
type Server struct {
	store        *store.Store
	tokens       *auth.Manager
	hub          *websocket.Hub
	provisioning *provisioning.Handler
	firmware     *firmware.Registry
	sweeper      *lifecycle.Sweeper
	clock        identity.Clock
}

// NewServer wires the HTTP surface.
func NewServer(s *store.Store, tokens *auth.Manager, hub *websocket.Hub, prov *provisioning.Handler, fw *firmware.Registry, sweeper *lifecycle.Sweeper, clock identity.Clock) *Server {
	return &Server{
		store:        s,
		tokens:       tokens,
		hub:          hub,
		provisioning: prov,
		firmware:     fw,
		sweeper:      sweeper,
		clock:        clock,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		// Device downloads authenticate via the OTA URL, not a session.
		r.Get("/firmware/{version}/download", s.handleFirmwareDownload)

		r.Group(func(r chi.Router) {
			r.Use(s.requireOperator)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/{deviceID}/approve", s.handleApproveDevice)
				r.Post("/{deviceID}/reject", s.handleRejectDevice)
				r.Post("/{deviceID}/unassign", s.handleUnassignDevice)
				r.Get("/{deviceID}/commands", s.handleListDeviceCommands)
			})

			r.Route("/firmware", func(r chi.Router) {
				r.Get("/", s.handleListFirmware)
				r.Post("/", s.handleUploadFirmware)
				r.Get("/latest", s.handleLatestFirmware)
				r.Post("/ota", s.handleTriggerOTA)
			})

			r.Post("/subscriptions/{id}/payments", s.handleRecordPayment)

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", s.handleListAlerts)
				r.Post("/{id}/ack", s.handleAckAlert)
			})

			r.Route("/readings", func(r chi.Router) {
				r.Get("/", s.handleListReadings)
				r.Get("/latest", s.handleLatestReadings)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
