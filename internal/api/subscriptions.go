package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pitsense/pitsense/internal/errors"
)

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	const op = "api.handleRecordPayment"
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, errors.E(errors.KindValidation, op, err))
		return
	}

	var body struct {
		ExtendMonths int `json:"extend_months"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	sub, err := s.sweeper.RecordPayment(r.Context(), id, body.ExtendMonths, actorID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}
