package lifecycle

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitsense/pitsense/internal/commands"
	"github.com/pitsense/pitsense/internal/config"
	"github.com/pitsense/pitsense/internal/models"
	"github.com/pitsense/pitsense/internal/store"
	"github.com/pitsense/pitsense/internal/websocket"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

type fakePublisher struct {
	topics []string
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	p.topics = append(p.topics, topic)
	return nil
}

type fakeHub struct {
	tenantEvents   map[int64][]websocket.Event
	locationEvents map[int64][]websocket.Event
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		tenantEvents:   map[int64][]websocket.Event{},
		locationEvents: map[int64][]websocket.Event{},
	}
}

func (h *fakeHub) BroadcastToTenant(tenantID int64, ev websocket.Event) {
	h.tenantEvents[tenantID] = append(h.tenantEvents[tenantID], ev)
}

func (h *fakeHub) BroadcastToLocation(locationID int64, ev websocket.Event) {
	h.locationEvents[locationID] = append(h.locationEvents[locationID], ev)
}

var sweepNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *store.Store
	sweep  *Sweeper
	clock  *stepClock
	pub    *fakePublisher
	hub    *fakeHub
	tenant *models.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.New(config.DB{URL: filepath.Join(t.TempDir(), "test.db"), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := &stepClock{t: sweepNow}
	pub := &fakePublisher{}
	hub := newFakeHub()
	dispatcher := commands.NewDispatcher(s, pub, clock)

	tenant := &models.Tenant{Name: "Workshop", Slug: "workshop", SubscriptionStatus: models.TenantActive}
	require.NoError(t, s.CreateTenant(context.Background(), tenant, sweepNow))

	return &fixture{
		store:  s,
		sweep:  NewSweeper(s, dispatcher, hub, clock, 5*time.Minute, 60),
		clock:  clock,
		pub:    pub,
		hub:    hub,
		tenant: tenant,
	}
}

func (f *fixture) seedBoundDevice(t *testing.T, deviceID, key string) {
	t.Helper()
	ctx := context.Background()
	d := &models.Device{DeviceID: deviceID, PrimarySensorType: models.SensorDHT22, ReportIntervalSeconds: 60}
	require.NoError(t, f.store.CreateAnnouncedDevice(ctx, d, f.clock.t))
	require.NoError(t, f.store.ActivateDevice(ctx, deviceID, key, f.tenant.ID, nil, f.clock.t))
}

func (f *fixture) seedSubscription(t *testing.T, deviceID, key string, status models.SubscriptionStatus, expires time.Time) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		TenantID:        f.tenant.ID,
		DeviceID:        &deviceID,
		LicenseKey:      key,
		Plan:            models.PlanTrial,
		Status:          status,
		Currency:        "EUR",
		ExpiresAt:       &expires,
		GracePeriodDays: 7,
	}
	require.NoError(t, f.store.CreateSubscription(context.Background(), sub, f.clock.t))
	return sub
}

func TestSweepExpiresDueSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedBoundDevice(t, "ESP32-AABBCC", "LIC-AAAA-BBBB-CCCC")
	sub := f.seedSubscription(t, "ESP32-AABBCC", "LIC-AAAA-BBBB-CCCC", models.SubscriptionActive, sweepNow.Add(-time.Hour))

	f.sweep.SweepOnce(ctx)

	got, err := f.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionExpired, got.Status)

	// Inside the grace period the device keeps running.
	d, err := f.store.GetDevice(ctx, "ESP32-AABBCC")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceActive, d.Status)
	assert.Empty(t, f.pub.topics)
}

func TestSweepSuspendsAfterGracePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedBoundDevice(t, "ESP32-AABBCC", "LIC-AAAA-BBBB-CCCC")
	// Active but expired 8 days ago: one sweep expires it, and because
	// the grace period is already exceeded the same sweep suspends it.
	sub := f.seedSubscription(t, "ESP32-AABBCC", "LIC-AAAA-BBBB-CCCC", models.SubscriptionActive, sweepNow.AddDate(0, 0, -8))

	f.sweep.SweepOnce(ctx)

	got, err := f.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionSuspended, got.Status)

	d, err := f.store.GetDevice(ctx, "ESP32-AABBCC")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceSuspended, d.Status)

	require.Len(t, f.pub.topics, 1)
	assert.Equal(t, "workshop/"+strconv.FormatInt(f.tenant.ID, 10)+"/device/ESP32-AABBCC/command", f.pub.topics[0])

	cmds, err := f.store.ListCommandsForDevice(ctx, "ESP32-AABBCC", 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), cmds.Total)
	assert.Equal(t, models.CommandDisable, cmds.Items[0].Command)
	assert.Equal(t, "Subscription suspended", cmds.Items[0].Reason)
}

func TestSweepWarnsExpiringOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedSubscription(t, "ESP32-AABBCC", "LIC-AAAA-BBBB-CCCC", models.SubscriptionActive, sweepNow.AddDate(0, 0, 3))

	f.sweep.SweepOnce(ctx)
	f.clock.t = f.clock.t.Add(time.Hour)
	f.sweep.SweepOnce(ctx)

	alerts, err := f.store.ListAlerts(ctx, f.tenant.ID, false, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), alerts.Total, "warning must be deduped within 24h")
	a := alerts.Items[0]
	assert.Equal(t, models.AlertSubscriptionExpiring, a.Type)
	assert.Equal(t, "Subscription LIC-AAAA-****-**** expires in 3 days", a.Message)

	assert.Len(t, f.hub.tenantEvents[f.tenant.ID], 1)

	// The next day it warns again.
	f.clock.t = sweepNow.Add(25 * time.Hour)
	f.sweep.SweepOnce(ctx)
	alerts, err = f.store.ListAlerts(ctx, f.tenant.ID, false, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), alerts.Total)
}

func TestSweepWarnsExpiringUnboundSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Subscription with no device binding at all.
	expires := sweepNow.AddDate(0, 0, 3)
	sub := &models.Subscription{
		TenantID:        f.tenant.ID,
		LicenseKey:      "LIC-AAAA-BBBB-CCCC",
		Plan:            models.PlanTrial,
		Status:          models.SubscriptionActive,
		Currency:        "EUR",
		ExpiresAt:       &expires,
		GracePeriodDays: 7,
	}
	require.NoError(t, f.store.CreateSubscription(ctx, sub, sweepNow))

	f.sweep.SweepOnce(ctx)
	f.clock.t = f.clock.t.Add(time.Hour)
	f.sweep.SweepOnce(ctx)

	alerts, err := f.store.ListAlerts(ctx, f.tenant.ID, false, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), alerts.Total, "dedupe must hold without a device binding")
}

func TestSweepMarksSilentDevicesOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	loc := &models.Location{TenantID: f.tenant.ID, Number: 1, Status: models.LocationActive}
	require.NoError(t, f.store.CreateLocation(ctx, loc, sweepNow))

	d := &models.Device{DeviceID: "ESP32-AABBCC", PrimarySensorType: models.SensorDHT22, ReportIntervalSeconds: 60}
	require.NoError(t, f.store.CreateAnnouncedDevice(ctx, d, sweepNow))
	require.NoError(t, f.store.ActivateDevice(ctx, "ESP32-AABBCC", "LIC-AAAA-BBBB-CCCC", f.tenant.ID, &loc.ID, sweepNow))

	// Two minutes of silence against a 60s threshold.
	f.clock.t = sweepNow.Add(2 * time.Minute)
	f.sweep.SweepOnce(ctx)

	got, err := f.store.GetDevice(ctx, "ESP32-AABBCC")
	require.NoError(t, err)
	assert.False(t, got.IsOnline)

	alerts, err := f.store.ListAlerts(ctx, f.tenant.ID, true, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), alerts.Total)
	assert.Equal(t, models.AlertDeviceOffline, alerts.Items[0].Type)

	require.Len(t, f.hub.tenantEvents[f.tenant.ID], 1)
	assert.Equal(t, websocket.EventDeviceOffline, f.hub.tenantEvents[f.tenant.ID][0].Event)
	assert.Len(t, f.hub.locationEvents[loc.ID], 1)

	// Second sweep: the device is already offline, nothing new happens.
	f.clock.t = f.clock.t.Add(time.Minute)
	f.sweep.SweepOnce(ctx)
	alerts, err = f.store.ListAlerts(ctx, f.tenant.ID, true, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), alerts.Total)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedBoundDevice(t, "ESP32-AABBCC", "LIC-AAAA-BBBB-CCCC")
	sub := f.seedSubscription(t, "ESP32-AABBCC", "LIC-AAAA-BBBB-CCCC", models.SubscriptionSuspended, sweepNow.AddDate(0, 0, -10))
	require.NoError(t, f.store.SetDeviceStatus(ctx, "ESP32-AABBCC", models.DeviceSuspended, sweepNow))

	got, err := f.sweep.RecordPayment(ctx, sub.ID, 2, nil)
	require.NoError(t, err)

	// Expiry is in the past, so the 60 days count from now.
	wantExpiry := sweepNow.AddDate(0, 0, 60)
	assert.Equal(t, models.SubscriptionActive, got.Status)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(wantExpiry))
	require.NotNil(t, got.NextPaymentAt)
	assert.True(t, got.NextPaymentAt.Equal(wantExpiry.AddDate(0, 0, -7)))
	require.NotNil(t, got.LastPaymentAt)
	assert.True(t, got.LastPaymentAt.Equal(sweepNow))

	d, err := f.store.GetDevice(ctx, "ESP32-AABBCC")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceActive, d.Status)

	// The device is told to resume.
	cmds, err := f.store.ListCommandsForDevice(ctx, "ESP32-AABBCC", 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), cmds.Total)
	assert.Equal(t, models.CommandEnable, cmds.Items[0].Command)
	assert.Equal(t, "Payment received", cmds.Items[0].Reason)
}

func TestRecordPaymentExtendsFromFutureExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	future := sweepNow.AddDate(0, 0, 10)
	sub := f.seedSubscription(t, "ESP32-AABBCC", "LIC-AAAA-BBBB-CCCC", models.SubscriptionActive, future)

	got, err := f.sweep.RecordPayment(ctx, sub.ID, 1, nil)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(future.AddDate(0, 0, 30)), "expiry extends from the current expiry, not from now")

	// The bound device has no row; the payment still lands and no
	// ENABLE goes out.
	assert.Empty(t, f.pub.topics)
	cmds, err := f.store.ListCommandsForDevice(ctx, "ESP32-AABBCC", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cmds.Total)
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.sweep.RecordPayment(context.Background(), 1, 0, nil)
	require.Error(t, err)
}
