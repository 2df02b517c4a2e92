package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/errors"
)

// errorEnvelope is the shared HTTP error shape.
type errorEnvelope struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Failed to encode response body")
	}
}

// respondError translates an error kind to its HTTP status and the
// shared envelope. Internal errors never leak their underlying cause.
func respondError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	kind := errors.KindOf(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Internal error")
		message = "internal error"
	}
	respondJSON(w, status, errorEnvelope{
		Success:   false,
		ErrorCode: string(kind),
		Message:   message,
	})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.E(errors.KindValidation, "api.decodeBody", err)
	}
	return nil
}
