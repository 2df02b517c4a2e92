package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitsense/pitsense/internal/config"
	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.DB{
		URL:         filepath.Join(t.TempDir(), "test.db"),
		PoolSize:    2,
		MaxOverflow: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedTenant(t *testing.T, s *Store, slug string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		Name:               "Workshop " + slug,
		Slug:               slug,
		SubscriptionPlan:   string(models.PlanTrial),
		SubscriptionStatus: models.TenantActive,
		IsActive:           true,
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant, testNow))
	return tenant
}

func seedLocation(t *testing.T, s *Store, tenantID int64, number int) *models.Location {
	t.Helper()
	loc := &models.Location{
		TenantID: tenantID,
		Number:   number,
		Name:     fmt.Sprintf("Pit %d", number),
		Status:   models.LocationActive,
	}
	require.NoError(t, s.CreateLocation(context.Background(), loc, testNow))
	return loc
}

func seedDevice(t *testing.T, s *Store, deviceID string) *models.Device {
	t.Helper()
	device := &models.Device{
		DeviceID:              deviceID,
		PrimarySensorType:     models.SensorDHT22,
		FirmwareVersion:       "1.0.0",
		MAC:                   "a1:b2:c3:d4:e5:f6",
		IP:                    "10.0.0.20",
		ReportIntervalSeconds: 60,
	}
	require.NoError(t, s.CreateAnnouncedDevice(context.Background(), device, testNow))
	return device
}

func TestCreateTenantSeedsDefaultThresholds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "bobs-garage")
	require.NotZero(t, tenant.ID)

	th, err := s.GetTenantThresholds(ctx, tenant.ID)
	require.NoError(t, err)
	defaults := models.DefaultTenantThresholds(tenant.ID)
	assert.Equal(t, defaults.TempMax, th.TempMax)
	assert.Equal(t, defaults.PM25Crit, th.PM25Crit)
}

func TestTenantSlugConflict(t *testing.T) {
	s := newTestStore(t)

	seedTenant(t, s, "bobs-garage")
	dup := &models.Tenant{Name: "Other", Slug: "bobs-garage", SubscriptionStatus: models.TenantActive}
	err := s.CreateTenant(context.Background(), dup, testNow)
	require.Error(t, err)
	assert.Equal(t, errors.KindConflict, errors.KindOf(err))
}

func TestGetTenantBySlug(t *testing.T) {
	s := newTestStore(t)

	created := seedTenant(t, s, "bobs-garage")
	got, err := s.GetTenantBySlug(context.Background(), "bobs-garage")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = s.GetTenantBySlug(context.Background(), "missing")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestLocationNumberUniquePerTenant(t *testing.T) {
	s := newTestStore(t)

	a := seedTenant(t, s, "tenant-a")
	b := seedTenant(t, s, "tenant-b")

	seedLocation(t, s, a.ID, 1)
	// Same number under another tenant is fine.
	seedLocation(t, s, b.ID, 1)

	dup := &models.Location{TenantID: a.ID, Number: 1, Status: models.LocationActive}
	err := s.CreateLocation(context.Background(), dup, testNow)
	require.Error(t, err)
	assert.Equal(t, errors.KindConflict, errors.KindOf(err))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(q *Queries) error {
		tenant := &models.Tenant{Name: "Doomed", Slug: "doomed", SubscriptionStatus: models.TenantActive}
		if err := q.CreateTenant(ctx, tenant, testNow); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	_, err = s.GetTenantBySlug(ctx, "doomed")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestGetTenantThresholdsFallsBackToDefaults(t *testing.T) {
	s := newTestStore(t)

	th, err := s.GetTenantThresholds(context.Background(), 999)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTenantThresholds(999), th)
}

func TestLocationThresholdsAbsentIsNil(t *testing.T) {
	s := newTestStore(t)

	lt, err := s.GetLocationThresholds(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, lt)
}

func TestUpsertLocationThresholds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tenant := seedTenant(t, s, "bobs-garage")
	loc := seedLocation(t, s, tenant.ID, 1)

	tempMax := 28.0
	require.NoError(t, s.UpsertLocationThresholds(ctx, &models.LocationThresholds{
		LocationID: loc.ID,
		TempMax:    &tempMax,
	}))

	lt, err := s.GetLocationThresholds(ctx, loc.ID)
	require.NoError(t, err)
	require.NotNil(t, lt)
	require.NotNil(t, lt.TempMax)
	assert.Equal(t, 28.0, *lt.TempMax)
	assert.Nil(t, lt.TempMin)

	// Second upsert replaces.
	tempMax = 26.5
	require.NoError(t, s.UpsertLocationThresholds(ctx, &models.LocationThresholds{
		LocationID: loc.ID,
		TempMax:    &tempMax,
	}))
	lt, err = s.GetLocationThresholds(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 26.5, *lt.TempMax)
}
