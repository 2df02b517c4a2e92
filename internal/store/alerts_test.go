package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/models"
)

func seedAlert(t *testing.T, s *Store, tenantID int64, locationID *int64, deviceID string, typ models.AlertType, now time.Time) *models.Alert {
	t.Helper()
	a := &models.Alert{
		TenantID:   tenantID,
		LocationID: locationID,
		DeviceID:   &deviceID,
		Type:       typ,
		Severity:   models.SeverityWarning,
		Message:    "test alert",
	}
	require.NoError(t, s.InsertAlert(context.Background(), a, now))
	return a
}

func TestHasUnacknowledgedSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	locID := int64(7)

	seedAlert(t, s, 3, &locID, "ESP32-AABBCC", models.AlertTempTooHigh, testNow)

	// Same device, location, and type inside the window.
	hot, err := s.HasUnacknowledgedSince(ctx, "ESP32-AABBCC", &locID, models.AlertTempTooHigh, testNow.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.True(t, hot)

	// Different type does not suppress.
	hot, err = s.HasUnacknowledgedSince(ctx, "ESP32-AABBCC", &locID, models.AlertHumidityTooHigh, testNow.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.False(t, hot)

	// Different location does not suppress.
	otherLoc := int64(8)
	hot, err = s.HasUnacknowledgedSince(ctx, "ESP32-AABBCC", &otherLoc, models.AlertTempTooHigh, testNow.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.False(t, hot)

	// Outside the window.
	hot, err = s.HasUnacknowledgedSince(ctx, "ESP32-AABBCC", &locID, models.AlertTempTooHigh, testNow.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, hot)
}

func TestAcknowledgedAlertDoesNotSuppress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	locID := int64(7)

	a := seedAlert(t, s, 3, &locID, "ESP32-AABBCC", models.AlertTempTooHigh, testNow)
	require.NoError(t, s.AcknowledgeAlert(ctx, a.ID, 42, testNow.Add(time.Minute)))

	hot, err := s.HasUnacknowledgedSince(ctx, "ESP32-AABBCC", &locID, models.AlertTempTooHigh, testNow.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.False(t, hot)

	// HasAlertSince counts acknowledged alerts too.
	seen, err := s.HasAlertSince(ctx, 3, sptr("ESP32-AABBCC"), models.AlertTempTooHigh, testNow.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestHasAlertSinceWithoutDevice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.Alert{
		TenantID: 3,
		Type:     models.AlertSubscriptionExpiring,
		Severity: models.SeverityWarning,
		Message:  "Subscription LIC-AAAA-****-**** expires in 3 days",
	}
	require.NoError(t, s.InsertAlert(ctx, a, testNow))

	seen, err := s.HasAlertSince(ctx, 3, nil, models.AlertSubscriptionExpiring, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, seen, "NULL device_id must match a nil lookup")

	// A device-scoped lookup does not match the device-less alert.
	seen, err = s.HasAlertSince(ctx, 3, sptr("ESP32-AABBCC"), models.AlertSubscriptionExpiring, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestAcknowledgeAlertNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.AcknowledgeAlert(context.Background(), 999, 42, testNow)
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestListAlerts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	locID := int64(7)

	first := seedAlert(t, s, 3, &locID, "ESP32-AABBCC", models.AlertTempTooHigh, testNow)
	seedAlert(t, s, 3, &locID, "ESP32-AABBCC", models.AlertHumidityTooHigh, testNow.Add(time.Minute))
	seedAlert(t, s, 4, nil, "ESP32-OTHER", models.AlertDeviceOffline, testNow)

	page, err := s.ListAlerts(ctx, 3, false, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	require.NoError(t, s.AcknowledgeAlert(ctx, first.ID, 42, testNow.Add(2*time.Minute)))
	unacked, err := s.ListAlerts(ctx, 3, true, 1, 50)
	require.NoError(t, err)
	require.Equal(t, int64(1), unacked.Total)
	assert.Equal(t, models.AlertHumidityTooHigh, unacked.Items[0].Type)
	require.NotNil(t, unacked.Items[0].DeviceID)
	assert.Equal(t, "ESP32-AABBCC", *unacked.Items[0].DeviceID)
}
