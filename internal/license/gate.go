package license

import (
	"context"
	stderrors "errors"

	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/identity"
	"github.com/pitsense/pitsense/internal/store"
)

// Gate loads the device and subscription rows and applies Decide.
type Gate struct {
	store *store.Store
	clock identity.Clock
}

// NewGate builds a store-backed license gate.
func NewGate(s *store.Store, clock identity.Clock) *Gate {
	return &Gate{store: s, clock: clock}
}

// Authorize resolves the decision for a (device_id, license_key)
// tuple. Missing rows become rejections; database failures are
// returned as errors and leave no decision.
func (g *Gate) Authorize(ctx context.Context, deviceID, licenseKey string) (Decision, error) {
	device, err := g.store.GetDevice(ctx, deviceID)
	if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		return Decision{}, err
	}

	sub, err := g.store.GetSubscriptionByDevice(ctx, deviceID)
	if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		return Decision{}, err
	}

	decision := Decide(device, sub, licenseKey, g.clock.Now())
	if !decision.Valid {
		log.Debug().
			Str("deviceId", deviceID).
			Str("licenseKey", identity.MaskLicenseKey(licenseKey)).
			Str("reason", string(decision.Reason)).
			Msg("License gate rejected device")
	}
	return decision, nil
}
