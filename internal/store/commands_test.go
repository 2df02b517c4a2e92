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

func seedCommand(t *testing.T, s *Store, deviceID string, cmd models.DeviceCommand, now time.Time) *models.Command {
	t.Helper()
	c := &models.Command{
		DeviceID: deviceID,
		TenantID: 3,
		Command:  cmd,
		Reason:   "test",
	}
	require.NoError(t, s.InsertCommand(context.Background(), c, now))
	return c
}

func TestCommandLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := seedCommand(t, s, "ESP32-AABBCC", models.CommandDisable, testNow)
	assert.Equal(t, models.CommandPending, c.Status)

	require.NoError(t, s.MarkCommandSent(ctx, c.ID, testNow.Add(time.Second)))
	got, err := s.GetCommand(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandSent, got.Status)
	require.NotNil(t, got.SentAt)

	require.NoError(t, s.AcknowledgeCommand(ctx, c.ID, "ESP32-AABBCC", testNow.Add(2*time.Second)))
	got, err = s.GetCommand(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandAcknowledged, got.Status)
	require.NotNil(t, got.AckedAt)
}

func TestAcknowledgeCommandGuards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := seedCommand(t, s, "ESP32-AABBCC", models.CommandEnable, testNow)

	// Still pending: an ack for it is stale.
	err := s.AcknowledgeCommand(ctx, c.ID, "ESP32-AABBCC", testNow)
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	require.NoError(t, s.MarkCommandSent(ctx, c.ID, testNow))

	// Wrong device cannot ack someone else's command.
	err = s.AcknowledgeCommand(ctx, c.ID, "ESP32-IMPOSTOR", testNow)
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	require.NoError(t, s.AcknowledgeCommand(ctx, c.ID, "ESP32-AABBCC", testNow))

	// Double ack is rejected.
	err = s.AcknowledgeCommand(ctx, c.ID, "ESP32-AABBCC", testNow)
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestMarkCommandFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := seedCommand(t, s, "ESP32-AABBCC", models.CommandRestart, testNow)
	require.NoError(t, s.MarkCommandFailed(ctx, c.ID))

	got, err := s.GetCommand(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandFailed, got.Status)
}

func TestListCommandsForDevice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedCommand(t, s, "ESP32-AABBCC", models.CommandDisable, testNow)
	seedCommand(t, s, "ESP32-AABBCC", models.CommandEnable, testNow.Add(time.Minute))
	seedCommand(t, s, "ESP32-OTHER", models.CommandRestart, testNow)

	page, err := s.ListCommandsForDevice(ctx, "ESP32-AABBCC", 1, 50)
	require.NoError(t, err)
	require.Equal(t, int64(2), page.Total)
	// Newest first.
	assert.Equal(t, models.CommandEnable, page.Items[0].Command)
}
