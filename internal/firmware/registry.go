// Package firmware keeps the content-addressed firmware store and
// triggers OTA updates.
package firmware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/commands"
	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/identity"
	"github.com/pitsense/pitsense/internal/models"
	"github.com/pitsense/pitsense/internal/store"
)

// Registry owns firmware binaries and their catalog rows.
type Registry struct {
	store      *store.Store
	dispatcher *commands.Dispatcher
	clock      identity.Clock
	uploadDir  string
	baseURL    string
}

// NewRegistry wires the registry. uploadDir is created on first use.
func NewRegistry(s *store.Store, dispatcher *commands.Dispatcher, clock identity.Clock, uploadDir, baseURL string) *Registry {
	return &Registry{
		store:      s,
		dispatcher: dispatcher,
		clock:      clock,
		uploadDir:  uploadDir,
		baseURL:    baseURL,
	}
}

// Upload stores a firmware binary content-addressed by its SHA-256 and
// records the release. An existing version fails with Conflict before
// any bytes hit disk.
func (r *Registry) Upload(ctx context.Context, version, filename string, content []byte, notes string, uploaderID *int64) (*models.FirmwareRelease, error) {
	const op = "firmware.Upload"
	if version == "" {
		return nil, errors.Ef(errors.KindValidation, op, "version must not be empty")
	}
	if len(content) == 0 {
		return nil, errors.Ef(errors.KindValidation, op, "firmware binary is empty")
	}

	if _, err := r.store.GetFirmwareByVersion(ctx, version); err == nil {
		return nil, errors.Ef(errors.KindConflict, op, "firmware version %s already exists", version)
	} else if !stderrors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(r.uploadDir, 0755); err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}
	path := filepath.Join(r.uploadDir, digest+".bin")
	if err := os.WriteFile(path, content, 0644); err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}

	now := r.clock.Now()
	release := &models.FirmwareRelease{
		Version:    version,
		Filename:   filename,
		Path:       path,
		Size:       int64(len(content)),
		SHA256:     digest,
		Notes:      notes,
		UploaderID: uploaderID,
	}
	err := r.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.InsertFirmware(ctx, release, now); err != nil {
			return err
		}
		return q.InsertAudit(ctx, &models.AuditLog{
			UserID:       uploaderID,
			Action:       "firmware.upload",
			ResourceType: "firmware",
			ResourceID:   version,
			NewValue:     fmt.Sprintf(`{"sha256":%q,"size":%d}`, digest, len(content)),
		}, now)
	})
	if err != nil {
		// Roll the binary back; a concurrent upload of the same
		// version won the race.
		os.Remove(path)
		return nil, err
	}

	log.Info().
		Str("version", version).
		Str("sha256", digest).
		Int("size", len(content)).
		Msg("Firmware release uploaded")
	return release, nil
}

// List returns every release newest-first.
func (r *Registry) List(ctx context.Context) ([]models.FirmwareRelease, error) {
	return r.store.ListFirmware(ctx)
}

// Latest returns the newest release; the response carries the checksum
// devices verify after pulling the binary.
func (r *Registry) Latest(ctx context.Context) (*models.FirmwareRelease, error) {
	return r.store.LatestFirmware(ctx)
}

// Open returns the release row and its binary path for download.
func (r *Registry) Open(ctx context.Context, version string) (*models.FirmwareRelease, string, error) {
	release, err := r.store.GetFirmwareByVersion(ctx, version)
	if err != nil {
		return nil, "", err
	}
	return release, release.Path, nil
}

// DownloadURL builds the device-facing URL for a release.
func (r *Registry) DownloadURL(version string) string {
	return fmt.Sprintf("%s/api/firmware/%s/download", r.baseURL, version)
}

// TriggerOTA asks the dispatcher to send UPDATE_FIRMWARE with the
// download URL; the device pulls the binary and verifies the checksum.
func (r *Registry) TriggerOTA(ctx context.Context, deviceID, version string, issuerID *int64) (*models.Command, error) {
	const op = "firmware.TriggerOTA"

	device, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.TenantID == nil {
		return nil, errors.Ef(errors.KindInvariant, op, "device %s is not assigned to a tenant", deviceID)
	}
	release, err := r.store.GetFirmwareByVersion(ctx, version)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"url": r.DownloadURL(release.Version)})
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}
	return r.dispatcher.Send(ctx, commands.SendRequest{
		DeviceID: deviceID,
		TenantID: *device.TenantID,
		Command:  models.CommandUpdateFirmware,
		Reason:   "Firmware update to " + release.Version,
		Payload:  payload,
		IssuerID: issuerID,
	})
}
