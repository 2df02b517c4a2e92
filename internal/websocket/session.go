package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/auth"
)

// session is one connected realtime client.
type session struct {
	hub    *Hub
	conn   *websocket.Conn
	claims *auth.Claims
	send   chan []byte
}

// readPump consumes client frames until the transport closes. It runs
// on its own goroutine per session.
func (s *session) readPump() {
	defer func() {
		s.hub.unregister <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Realtime session read error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(Event{Event: EventError, Data: map[string]string{"message": "invalid message"}})
			continue
		}
		s.handle(msg)
	}
}

// handle processes one client action.
func (s *session) handle(msg clientMessage) {
	switch msg.Action {
	case "ping":
		s.reply(Event{Event: EventPong})

	case "subscribe_tenant":
		if !canSubscribeTenant(s.claims, msg.TenantID) {
			s.reply(Event{Event: EventError, Data: map[string]string{"message": "not authorized for tenant subscription"}})
			return
		}
		s.hub.subscribe <- subRequest{sess: s, scope: scopeTenant, id: msg.TenantID, add: true}
		s.reply(Event{Event: EventSubscribed, Data: map[string]any{"scope": "tenant", "tenant_id": msg.TenantID}})

	case "subscribe_location":
		// Membership enforcement is the token issuer's concern;
		// customers hold location-scoped tokens.
		s.hub.subscribe <- subRequest{sess: s, scope: scopeLocation, id: msg.LocationID, add: true}
		s.reply(Event{Event: EventSubscribed, Data: map[string]any{"scope": "location", "location_id": msg.LocationID}})

	case "unsubscribe":
		s.hub.subscribe <- subRequest{sess: s, scope: scopeLocation, id: msg.LocationID, add: false}

	default:
		s.reply(Event{Event: EventError, Data: map[string]string{"message": "unknown action"}})
	}
}

// reply queues a frame for this session only. A full buffer drops the
// frame; the write pump will notice a dead peer on its own.
func (s *session) reply(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	default:
	}
}

// writePump pushes queued frames and keepalive pings to the peer.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
