// Package identity provides UTC time and the opaque identifier,
// license, and token generators used across the control plane. All
// generators draw from crypto/rand.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
)

// Clock abstracts wall-clock time so sweepers and the alert engine can
// be tested against a frozen time.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the real time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Test helper.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

const (
	licensePrefix   = "LIC"
	licenseAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	slugMaxLen      = 50
)

// NewLicenseKey generates a device license key in the format
// LIC-XXXX-YYYY-ZZZZ over uppercase alphanumerics.
func NewLicenseKey() string {
	segments := make([]string, 3)
	for i := range segments {
		segments[i] = randomString(licenseAlphabet, 4)
	}
	return licensePrefix + "-" + strings.Join(segments, "-")
}

// MaskLicenseKey masks a license key for logging, preserving only the
// two leading segments.
func MaskLicenseKey(key string) string {
	parts := strings.Split(key, "-")
	if len(parts) < 2 {
		return "***"
	}
	return parts[0] + "-" + parts[1] + "-****-****"
}

// DeviceIDFromMAC derives the canonical device identifier from a
// hardware MAC address, e.g. "a1:b2:c3:d4:e5:f6" -> "ESP32-A1B2C3D4E5F6".
func DeviceIDFromMAC(mac string) string {
	clean := strings.NewReplacer(":", "", "-", "").Replace(mac)
	return "ESP32-" + strings.ToUpper(clean)
}

// Slugify produces a lower-kebab URL-safe slug from a display name,
// truncated to 50 characters. Deterministic for a given input.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > slugMaxLen {
		slug = strings.Trim(slug[:slugMaxLen], "-")
	}
	return slug
}

// SlugWithSuffix appends a collision counter to a slug, keeping the
// result within the 50-character limit.
func SlugWithSuffix(slug string, n int) string {
	suffix := fmt.Sprintf("-%d", n)
	if len(slug)+len(suffix) > slugMaxLen {
		slug = slug[:slugMaxLen-len(suffix)]
		slug = strings.TrimRight(slug, "-")
	}
	return slug + suffix
}

// NewShortCode generates a 6-digit customer-visible code. Callers
// retry on collision.
func NewShortCode() string {
	return randomString("0123456789", 6)
}

// NewStreamToken generates a URL-safe token with 32 bytes of entropy
// for media stream authentication.
func NewStreamToken() string {
	return randomURLSafe(32)
}

// NewViewToken generates a short-lived customer portal view token.
func NewViewToken() string {
	return "tok_" + randomURLSafe(32)
}

// NewSessionID returns a lexicographically sortable session identifier.
func NewSessionID() string {
	return ulid.Make().String()
}

// NewTempPassword generates an 8-character temporary password that
// always contains an uppercase letter, a digit, and punctuation.
func NewTempPassword() string {
	upper := randomString("ABCDEFGHJKLMNPQRSTUVWXYZ", 3)
	digits := randomString("0123456789", 3)
	lower := randomString("abcdefghjkmnpqrstuvwxyz", 1)
	return upper + "@" + digits + lower
}

func randomString(alphabet string, n int) string {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failure is unrecoverable
			panic(fmt.Sprintf("identity: rand.Int: %v", err))
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}

func randomURLSafe(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("identity: rand.Read: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
