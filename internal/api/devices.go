package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func queryInt64(r *http.Request, key string) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return n
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 50)
	tenantID := queryInt64(r, "tenant_id")

	devices, err := s.store.ListDevices(r.Context(), tenantID, page, pageSize)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, devices)
}

func (s *Server) handleApproveDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var body struct {
		TenantID   int64  `json:"tenant_id"`
		LocationID *int64 `json:"location_id,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	device, err := s.provisioning.Approve(r.Context(), deviceID, body.TenantID, body.LocationID, actorID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, device)
}

func (s *Server) handleRejectDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if err := s.provisioning.Reject(r.Context(), deviceID, actorID(r)); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUnassignDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if err := s.provisioning.Unassign(r.Context(), deviceID, actorID(r)); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListDeviceCommands(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 50)

	cmds, err := s.store.ListCommandsForDevice(r.Context(), deviceID, page, pageSize)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cmds)
}
