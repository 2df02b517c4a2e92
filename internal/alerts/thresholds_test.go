package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitsense/pitsense/internal/models"
)

func f(v float64) *float64 { return &v }

func TestResolveTenantOnly(t *testing.T) {
	tt := models.DefaultTenantThresholds(1)
	r := Resolve(tt, nil)
	assert.Equal(t, tt.TempMin, r.TempMin)
	assert.Equal(t, tt.PM25Crit, r.PM25Crit)
	assert.Equal(t, tt.DeviceOfflineS, r.DeviceOfflineS)
}

func TestResolveLocationOverride(t *testing.T) {
	tt := models.DefaultTenantThresholds(1)
	offline := 120
	lt := &models.LocationThresholds{
		LocationID:     7,
		TempMax:        f(28),
		PM25Warn:       f(10),
		DeviceOfflineS: &offline,
	}

	r := Resolve(tt, lt)
	assert.Equal(t, 28.0, r.TempMax)
	assert.Equal(t, 10.0, r.PM25Warn)
	assert.Equal(t, 120, r.DeviceOfflineS)
	// Unset fields inherit from the tenant.
	assert.Equal(t, tt.TempMin, r.TempMin)
	assert.Equal(t, tt.PM25Crit, r.PM25Crit)
}

func TestClassifyRange(t *testing.T) {
	assert.Equal(t, models.StatusUnknown, ClassifyRange(nil, 15, 35))
	assert.Equal(t, models.StatusGood, ClassifyRange(f(15), 15, 35))
	assert.Equal(t, models.StatusGood, ClassifyRange(f(35), 15, 35))
	assert.Equal(t, models.StatusWarning, ClassifyRange(f(14.9), 15, 35))
	assert.Equal(t, models.StatusWarning, ClassifyRange(f(35.1), 15, 35))
}

func TestClassifyMax(t *testing.T) {
	assert.Equal(t, models.StatusUnknown, ClassifyMax(nil, 70))
	assert.Equal(t, models.StatusGood, ClassifyMax(f(70), 70))
	assert.Equal(t, models.StatusWarning, ClassifyMax(f(70.5), 70))
}

func TestClassifyTriBoundaries(t *testing.T) {
	// Warn and crit thresholds are inclusive on the worse side.
	assert.Equal(t, models.StatusGood, ClassifyTri(f(11.9), 12, 35.4))
	assert.Equal(t, models.StatusWarning, ClassifyTri(f(12), 12, 35.4))
	assert.Equal(t, models.StatusWarning, ClassifyTri(f(35.3), 12, 35.4))
	assert.Equal(t, models.StatusCritical, ClassifyTri(f(35.4), 12, 35.4))
	assert.Equal(t, models.StatusUnknown, ClassifyTri(nil, 12, 35.4))
}
