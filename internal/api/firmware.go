package api

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/pitsense/pitsense/internal/errors"
)

// maxFirmwareSize caps an upload at 16 MiB; gateway images are well
// under this.
const maxFirmwareSize = 16 << 20

func (s *Server) handleListFirmware(w http.ResponseWriter, r *http.Request) {
	releases, err := s.firmware.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": releases})
}

func (s *Server) handleLatestFirmware(w http.ResponseWriter, r *http.Request) {
	release, err := s.firmware.Latest(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, release)
}

func (s *Server) handleUploadFirmware(w http.ResponseWriter, r *http.Request) {
	const op = "api.handleUploadFirmware"
	if err := r.ParseMultipartForm(maxFirmwareSize); err != nil {
		respondError(w, errors.E(errors.KindValidation, op, err))
		return
	}
	version := r.FormValue("version")
	notes := r.FormValue("notes")

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, errors.E(errors.KindValidation, op, err))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxFirmwareSize+1))
	if err != nil {
		respondError(w, errors.E(errors.KindInternal, op, err))
		return
	}
	if len(content) > maxFirmwareSize {
		respondError(w, errors.Ef(errors.KindValidation, op, "firmware binary exceeds %d bytes", maxFirmwareSize))
		return
	}

	release, err := s.firmware.Upload(r.Context(), version, filepath.Base(header.Filename), content, notes, actorID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, release)
}

func (s *Server) handleFirmwareDownload(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	release, path, err := s.firmware.Open(r.Context(), version)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+release.Filename+`"`)
	w.Header().Set("X-Checksum-Sha256", release.SHA256)
	http.ServeFile(w, r, path)
}

func (s *Server) handleTriggerOTA(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceID string `json:"device_id"`
		Version  string `json:"version"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	cmd, err := s.firmware.TriggerOTA(r.Context(), body.DeviceID, body.Version, actorID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cmd)
}
