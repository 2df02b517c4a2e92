package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitsense/pitsense/internal/auth"
	"github.com/pitsense/pitsense/internal/models"
)

func i64(v int64) *int64 { return &v }

func TestCanSubscribeTenant(t *testing.T) {
	cases := []struct {
		name     string
		role     models.UserRole
		tenantID *int64
		want     bool
	}{
		{"super admin any tenant", models.RoleSuperAdmin, nil, true},
		{"owner of matching tenant", models.RoleOwner, i64(3), true},
		{"staff of matching tenant", models.RoleStaff, i64(3), true},
		{"owner of other tenant", models.RoleOwner, i64(9), false},
		{"owner without tenant binding", models.RoleOwner, nil, false},
		{"customer never", models.RoleCustomer, i64(3), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := &auth.Claims{UserID: 1, Role: tc.role, TenantID: tc.tenantID}
			assert.Equal(t, tc.want, canSubscribeTenant(claims, 3))
		})
	}
}

func newTestSession(h *Hub, role models.UserRole, tenantID *int64) *session {
	return &session{
		hub:    h,
		claims: &auth.Claims{UserID: 1, Role: role, TenantID: tenantID},
		send:   make(chan []byte, sendBufferSize),
	}
}

func TestFanOutScopesPartitions(t *testing.T) {
	h := NewHub(nil)

	tenantSess := newTestSession(h, models.RoleOwner, i64(3))
	locSess := newTestSession(h, models.RoleCustomer, nil)
	h.sessions[tenantSess] = struct{}{}
	h.sessions[locSess] = struct{}{}

	h.applySubscription(subRequest{sess: tenantSess, scope: scopeTenant, id: 3, add: true})
	h.applySubscription(subRequest{sess: locSess, scope: scopeLocation, id: 7, add: true})

	h.fanOut(broadcastMsg{scope: scopeTenant, id: 3, data: []byte(`{"event":"alert"}`)})
	h.fanOut(broadcastMsg{scope: scopeLocation, id: 7, data: []byte(`{"event":"sensor_update"}`)})
	h.fanOut(broadcastMsg{scope: scopeTenant, id: 99, data: []byte(`{"event":"alert"}`)})

	require.Len(t, tenantSess.send, 1)
	require.Len(t, locSess.send, 1)

	var frame Event
	require.NoError(t, json.Unmarshal(<-tenantSess.send, &frame))
	assert.Equal(t, EventAlert, frame.Event)
}

func TestFanOutDropsSlowSubscriber(t *testing.T) {
	h := NewHub(nil)

	sess := newTestSession(h, models.RoleOwner, i64(3))
	h.sessions[sess] = struct{}{}
	h.applySubscription(subRequest{sess: sess, scope: scopeTenant, id: 3, add: true})

	for i := 0; i < sendBufferSize; i++ {
		sess.send <- []byte(`{}`)
	}
	h.fanOut(broadcastMsg{scope: scopeTenant, id: 3, data: []byte(`{}`)})

	_, registered := h.sessions[sess]
	assert.False(t, registered, "a subscriber that cannot keep up is dropped")
	assert.Empty(t, h.tenants)
}

func TestDropRemovesFromAllPartitions(t *testing.T) {
	h := NewHub(nil)

	sess := newTestSession(h, models.RoleSuperAdmin, nil)
	h.sessions[sess] = struct{}{}
	h.applySubscription(subRequest{sess: sess, scope: scopeTenant, id: 3, add: true})
	h.applySubscription(subRequest{sess: sess, scope: scopeLocation, id: 7, add: true})

	h.drop(sess)

	assert.Empty(t, h.sessions)
	assert.Empty(t, h.tenants, "empty partitions are pruned")
	assert.Empty(t, h.locations)

	_, open := <-sess.send
	assert.False(t, open, "send channel is closed on drop")

	// Dropping twice is harmless.
	h.drop(sess)
}

func TestUnsubscribeLeavesOtherSessions(t *testing.T) {
	h := NewHub(nil)

	a := newTestSession(h, models.RoleOwner, i64(3))
	b := newTestSession(h, models.RoleStaff, i64(3))
	h.sessions[a] = struct{}{}
	h.sessions[b] = struct{}{}
	h.applySubscription(subRequest{sess: a, scope: scopeTenant, id: 3, add: true})
	h.applySubscription(subRequest{sess: b, scope: scopeTenant, id: 3, add: true})

	h.applySubscription(subRequest{sess: a, scope: scopeTenant, id: 3, add: false})

	h.fanOut(broadcastMsg{scope: scopeTenant, id: 3, data: []byte(`{}`)})
	assert.Empty(t, a.send)
	assert.Len(t, b.send, 1)
}

func TestBroadcastQueuesFrame(t *testing.T) {
	h := NewHub(nil)

	h.BroadcastToTenant(3, Event{Event: EventDeviceOffline, Data: map[string]string{"device_id": "ESP32-AABBCC"}})

	require.Len(t, h.broadcast, 1)
	msg := <-h.broadcast
	assert.Equal(t, scopeTenant, msg.scope)
	assert.Equal(t, int64(3), msg.id)

	var frame Event
	require.NoError(t, json.Unmarshal(msg.data, &frame))
	assert.Equal(t, EventDeviceOffline, frame.Event)
}
