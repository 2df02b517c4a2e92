// Package auth provides the session token primitive used by the HTTP
// surface and the realtime hub, plus password hashing.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pitsense/pitsense/internal/config"
	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/identity"
	"github.com/pitsense/pitsense/internal/models"
)

// Claims is the identity carried by a session token.
type Claims struct {
	UserID   int64           `json:"user_id"`
	Role     models.UserRole `json:"role"`
	TenantID *int64          `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// Manager mints and verifies HS256 session tokens.
type Manager struct {
	secret []byte
	cfg    config.Auth
	clock  identity.Clock
}

// NewManager builds a token manager from the auth configuration.
func NewManager(cfg config.Auth, clock identity.Clock) *Manager {
	return &Manager{secret: []byte(cfg.Secret), cfg: cfg, clock: clock}
}

// ttlFor maps a role onto its configured token lifetime.
func (m *Manager) ttlFor(role models.UserRole) time.Duration {
	switch role {
	case models.RoleOwner, models.RoleSuperAdmin:
		return time.Duration(m.cfg.OwnerTokenTTLH) * time.Hour
	case models.RoleCustomer:
		return time.Duration(m.cfg.CustomerTokenTTLH) * time.Hour
	default:
		return time.Duration(m.cfg.AccessTokenTTLH) * time.Hour
	}
}

// Mint issues a signed session token for the given identity.
func (m *Manager) Mint(userID int64, role models.UserRole, tenantID *int64) (string, error) {
	const op = "auth.Mint"
	now := m.clock.Now()
	claims := Claims{
		UserID:   userID,
		Role:     role,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttlFor(role))),
			ID:        identity.NewSessionID(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", errors.E(errors.KindInternal, op, err)
	}
	return signed, nil
}

// Verify parses and validates a session token. Any failure, including
// expiry and a wrong signing method, surfaces as Unauthorized.
func (m *Manager) Verify(token string) (*Claims, error) {
	const op = "auth.Verify"
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.clock.Now))
	if err != nil {
		return nil, errors.E(errors.KindUnauthorized, op, err)
	}
	if !parsed.Valid {
		return nil, errors.Ef(errors.KindUnauthorized, op, "invalid token")
	}
	return claims, nil
}

// HashPassword hashes a password at the configured bcrypt cost.
func (m *Manager) HashPassword(password string) (string, error) {
	const op = "auth.HashPassword"
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cfg.BcryptCost)
	if err != nil {
		return "", errors.E(errors.KindInternal, op, err)
	}
	return string(hash), nil
}

// CheckPassword compares a password against its stored hash.
func (m *Manager) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return errors.E(errors.KindUnauthorized, "auth.CheckPassword", err)
	}
	return nil
}
