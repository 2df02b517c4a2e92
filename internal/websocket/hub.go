// Package websocket implements the realtime hub that fans persisted
// events out to authenticated tenant- and location-scoped sessions.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/auth"
	"github.com/pitsense/pitsense/internal/metrics"
	"github.com/pitsense/pitsense/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	// CloseInvalidToken is sent when the session token is missing,
	// invalid, or expired.
	CloseInvalidToken = 4001

	sendBufferSize = 64
)

// Event is one server-to-client frame.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Server event names.
const (
	EventSensorUpdate  = "sensor_update"
	EventJobStatus     = "job_status"
	EventAlert         = "alert"
	EventDeviceOffline = "device_offline"
	EventDeviceOnline  = "device_online"
	EventCameraOffline = "camera_offline"
	EventPong          = "pong"
	EventSubscribed    = "subscribed"
	EventError         = "error"
)

// clientMessage is one client-to-server frame.
type clientMessage struct {
	Action     string `json:"action"`
	TenantID   int64  `json:"tenant_id,omitempty"`
	LocationID int64  `json:"location_id,omitempty"`
}

type scope int

const (
	scopeTenant scope = iota
	scopeLocation
)

type subRequest struct {
	sess  *session
	scope scope
	id    int64
	add   bool
}

type broadcastMsg struct {
	scope scope
	id    int64
	data  []byte
}

// Hub is the in-process fan-out registry. All registry mutation
// happens on the run loop; no external locks.
type Hub struct {
	tokens *auth.Manager

	register   chan *session
	unregister chan *session
	subscribe  chan subRequest
	broadcast  chan broadcastMsg

	sessions  map[*session]struct{}
	tenants   map[int64]map[*session]struct{}
	locations map[int64]map[*session]struct{}

	upgrader websocket.Upgrader
}

// NewHub builds the hub. Call Run before accepting connections.
func NewHub(tokens *auth.Manager) *Hub {
	return &Hub{
		tokens:     tokens,
		register:   make(chan *session, 16),
		unregister: make(chan *session, 16),
		subscribe:  make(chan subRequest, 64),
		broadcast:  make(chan broadcastMsg, 256),
		sessions:   make(map[*session]struct{}),
		tenants:    make(map[int64]map[*session]struct{}),
		locations:  make(map[int64]map[*session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run owns the registry until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for sess := range h.sessions {
				close(sess.send)
			}
			return

		case sess := <-h.register:
			h.sessions[sess] = struct{}{}
			metrics.HubSessions.Set(float64(len(h.sessions)))

		case sess := <-h.unregister:
			h.drop(sess)

		case req := <-h.subscribe:
			h.applySubscription(req)

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// drop removes the session from every partition.
func (h *Hub) drop(sess *session) {
	if _, ok := h.sessions[sess]; !ok {
		return
	}
	delete(h.sessions, sess)
	for id, set := range h.tenants {
		delete(set, sess)
		if len(set) == 0 {
			delete(h.tenants, id)
		}
	}
	for id, set := range h.locations {
		delete(set, sess)
		if len(set) == 0 {
			delete(h.locations, id)
		}
	}
	close(sess.send)
	metrics.HubSessions.Set(float64(len(h.sessions)))
}

func (h *Hub) applySubscription(req subRequest) {
	var partition map[int64]map[*session]struct{}
	if req.scope == scopeTenant {
		partition = h.tenants
	} else {
		partition = h.locations
	}
	if req.add {
		set, ok := partition[req.id]
		if !ok {
			set = make(map[*session]struct{})
			partition[req.id] = set
		}
		set[req.sess] = struct{}{}
		return
	}
	if set, ok := partition[req.id]; ok {
		delete(set, req.sess)
		if len(set) == 0 {
			delete(partition, req.id)
		}
	}
}

// fanOut delivers one frame to a partition. Sends are non-blocking; a
// subscriber that cannot keep up is dropped from all partitions.
func (h *Hub) fanOut(msg broadcastMsg) {
	var set map[*session]struct{}
	if msg.scope == scopeTenant {
		set = h.tenants[msg.id]
	} else {
		set = h.locations[msg.id]
	}
	for sess := range set {
		select {
		case sess.send <- msg.data:
		default:
			metrics.HubEventsDropped.Inc()
			log.Warn().Int64("userId", sess.claims.UserID).Msg("Dropping slow realtime subscriber")
			h.drop(sess)
		}
	}
}

// BroadcastToTenant emits an event to every tenant-scoped subscriber.
// Failures never bubble to the caller.
func (h *Hub) BroadcastToTenant(tenantID int64, ev Event) {
	h.enqueue(scopeTenant, tenantID, ev)
}

// BroadcastToLocation emits an event to every location-scoped
// subscriber.
func (h *Hub) BroadcastToLocation(locationID int64, ev Event) {
	h.enqueue(scopeLocation, locationID, ev)
}

func (h *Hub) enqueue(sc scope, id int64, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", ev.Event).Msg("Failed to encode realtime event")
		return
	}
	select {
	case h.broadcast <- broadcastMsg{scope: sc, id: id, data: data}:
	default:
		metrics.HubEventsDropped.Inc()
		log.Warn().Str("event", ev.Event).Msg("Realtime broadcast queue full, dropping event")
	}
}

// ServeHTTP upgrades the connection, authenticates the session token
// from the token query parameter, and starts the session pumps. A bad
// token closes the socket with code 4001.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	claims, err := h.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		msg := websocket.FormatCloseMessage(CloseInvalidToken, "invalid or expired token")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	sess := &session{
		hub:    h,
		conn:   conn,
		claims: claims,
		send:   make(chan []byte, sendBufferSize),
	}
	h.register <- sess

	go sess.writePump()
	go sess.readPump()

	log.Debug().Int64("userId", claims.UserID).Str("role", string(claims.Role)).Msg("Realtime session connected")
}

// canSubscribeTenant enforces the tenant-partition policy: operator
// role, and either the super role or a tenant match.
func canSubscribeTenant(claims *auth.Claims, tenantID int64) bool {
	if !models.OperatorRole(claims.Role) {
		return false
	}
	if claims.Role == models.RoleSuperAdmin {
		return true
	}
	return claims.TenantID != nil && *claims.TenantID == tenantID
}
