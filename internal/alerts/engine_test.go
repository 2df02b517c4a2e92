package alerts

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitsense/pitsense/internal/config"
	"github.com/pitsense/pitsense/internal/models"
	"github.com/pitsense/pitsense/internal/store"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func newEngineStore(t *testing.T) (*store.Store, *models.Tenant) {
	t.Helper()
	s, err := store.New(config.DB{URL: filepath.Join(t.TempDir(), "test.db"), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tenant := &models.Tenant{Name: "Workshop", Slug: "workshop", SubscriptionStatus: models.TenantActive}
	require.NoError(t, s.CreateTenant(context.Background(), tenant, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	return s, tenant
}

func reading(tenantID int64) *models.Reading {
	return &models.Reading{
		DeviceID:   "ESP32-AABBCC",
		LocationID: 7,
		TenantID:   tenantID,
		IsValid:    true,
	}
}

func TestEvaluateInRangeFiresNothing(t *testing.T) {
	s, tenant := newEngineStore(t)
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(clock)

	r := reading(tenant.ID)
	r.Temperature = f(22)
	r.Humidity = f(55)
	r.PM25 = f(5)

	fired, err := e.Evaluate(context.Background(), &s.Queries, r)
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestEvaluateHighTemperature(t *testing.T) {
	s, tenant := newEngineStore(t)
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(clock)

	r := reading(tenant.ID)
	r.Temperature = f(36.5)

	fired, err := e.Evaluate(context.Background(), &s.Queries, r)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	a := fired[0]
	assert.Equal(t, models.AlertTempTooHigh, a.Type)
	assert.Equal(t, models.SeverityWarning, a.Severity)
	assert.Equal(t, "Temperature 36.5°C exceeded max threshold of 35.0°C", a.Message)
	require.NotNil(t, a.TriggerValue)
	assert.Equal(t, 36.5, *a.TriggerValue)
	require.NotNil(t, a.LocationID)
	assert.Equal(t, int64(7), *a.LocationID)
}

func TestEvaluateCooldownSuppresses(t *testing.T) {
	s, tenant := newEngineStore(t)
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(clock)
	ctx := context.Background()

	r := reading(tenant.ID)
	r.Humidity = f(82)

	fired, err := e.Evaluate(ctx, &s.Queries, r)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, "Humidity 82.0% exceeded max threshold of 70.0%", fired[0].Message)

	// Same condition a minute later is suppressed.
	clock.t = clock.t.Add(time.Minute)
	fired, err = e.Evaluate(ctx, &s.Queries, r)
	require.NoError(t, err)
	assert.Empty(t, fired)

	// Past the cooldown window it fires again.
	clock.t = clock.t.Add(Cooldown)
	fired, err = e.Evaluate(ctx, &s.Queries, r)
	require.NoError(t, err)
	assert.Len(t, fired, 1)
}

func TestEvaluateAcknowledgedAlertRearms(t *testing.T) {
	s, tenant := newEngineStore(t)
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(clock)
	ctx := context.Background()

	r := reading(tenant.ID)
	r.Humidity = f(82)

	fired, err := e.Evaluate(ctx, &s.Queries, r)
	require.NoError(t, err)
	require.Len(t, fired, 1)

	require.NoError(t, s.AcknowledgeAlert(ctx, fired[0].ID, 42, clock.t))

	clock.t = clock.t.Add(time.Minute)
	fired, err = e.Evaluate(ctx, &s.Queries, r)
	require.NoError(t, err)
	assert.Len(t, fired, 1, "acknowledging should re-arm the condition")
}

func TestEvaluateParticulateSeverities(t *testing.T) {
	s, tenant := newEngineStore(t)
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(clock)

	// Defaults: PM2.5 warn 12 / crit 35.4, PM10 warn 54 / crit 154.
	r := reading(tenant.ID)
	r.PM25 = f(40)
	r.PM10 = f(60)

	fired, err := e.Evaluate(context.Background(), &s.Queries, r)
	require.NoError(t, err)
	require.Len(t, fired, 2)

	byType := map[models.AlertType]models.Alert{}
	for _, a := range fired {
		byType[a.Type] = a
	}
	pm25 := byType[models.AlertHighPM25]
	assert.Equal(t, models.SeverityCritical, pm25.Severity)
	assert.Equal(t, "PM2.5 40.0µg/m³ exceeded critical threshold of 35.4µg/m³", pm25.Message)

	pm10 := byType[models.AlertHighPM10]
	assert.Equal(t, models.SeverityWarning, pm10.Severity)
	assert.Equal(t, "PM10 60.0µg/m³ exceeded warning threshold of 54.0µg/m³", pm10.Message)
}

func TestEvaluateLocationOverride(t *testing.T) {
	s, tenant := newEngineStore(t)
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(clock)
	ctx := context.Background()

	// Paint booth runs hot: raise the max for this pit only.
	hotMax := 45.0
	require.NoError(t, s.UpsertLocationThresholds(ctx, &models.LocationThresholds{
		LocationID: 7,
		TempMax:    &hotMax,
	}))

	r := reading(tenant.ID)
	r.Temperature = f(40)

	fired, err := e.Evaluate(ctx, &s.Queries, r)
	require.NoError(t, err)
	assert.Empty(t, fired, "40°C is fine under the 45°C override")

	r.Temperature = f(46)
	fired, err = e.Evaluate(ctx, &s.Queries, r)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	require.NotNil(t, fired[0].ThresholdValue)
	assert.Equal(t, 45.0, *fired[0].ThresholdValue)
}

func TestEvaluateIAQUnitless(t *testing.T) {
	s, tenant := newEngineStore(t)
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(clock)

	r := reading(tenant.ID)
	r.IAQ = f(120)

	fired, err := e.Evaluate(context.Background(), &s.Queries, r)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, "IAQ 120.0 exceeded warning threshold of 100.0", fired[0].Message)
}
