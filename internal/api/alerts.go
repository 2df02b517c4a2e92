package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/store"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	tenantID := queryInt64(r, "tenant_id")
	if tenantID == 0 {
		if claims := claimsFrom(r); claims != nil && claims.TenantID != nil {
			tenantID = *claims.TenantID
		}
	}
	unackedOnly := r.URL.Query().Get("unacked") == "true"
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 50)

	alerts, err := s.store.ListAlerts(r.Context(), tenantID, unackedOnly, page, pageSize)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	const op = "api.handleAckAlert"
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, errors.E(errors.KindValidation, op, err))
		return
	}

	claims := claimsFrom(r)
	if err := s.store.AcknowledgeAlert(r.Context(), id, claims.UserID, s.clock.Now()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	filter := store.ReadingFilter{
		TenantID:   queryInt64(r, "tenant_id"),
		LocationID: queryInt64(r, "location_id"),
		DeviceID:   r.URL.Query().Get("device_id"),
	}
	if claims := claimsFrom(r); filter.TenantID == 0 && claims != nil && claims.TenantID != nil {
		filter.TenantID = *claims.TenantID
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 100)

	readings, err := s.store.ListReadings(r.Context(), filter, page, pageSize)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, readings)
}

func (s *Server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	tenantID := queryInt64(r, "tenant_id")
	if tenantID == 0 {
		if claims := claimsFrom(r); claims != nil && claims.TenantID != nil {
			tenantID = *claims.TenantID
		}
	}

	readings, err := s.store.LatestReadingsForTenant(r.Context(), tenantID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": readings})
}
