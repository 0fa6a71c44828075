package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nitinkhare/tradegateway/internal/dashboard"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin enforcement is left to a reverse proxy in front of
		// the gateway, matching the teacher's dashboard upgrader.
		return true
	},
}

// controlMessage is a client->server §6.4 control frame: subscribe,
// unsubscribe, or ping. Unset dimensions are left untouched.
type controlMessage struct {
	Type       string   `json:"type"`
	Symbols    []string `json:"symbols,omitempty"`
	AccountIDs []string `json:"account_ids,omitempty"`
	EventKinds []string `json:"event_kinds,omitempty"`
}

func toSet(existing map[string]struct{}, values []string) map[string]struct{} {
	if existing == nil {
		existing = make(map[string]struct{})
	}
	for _, v := range values {
		existing[v] = struct{}{}
	}
	return existing
}

func fromSet(existing map[string]struct{}, values []string) map[string]struct{} {
	for _, v := range values {
		delete(existing, v)
	}
	return existing
}

// handleWebSocket upgrades the connection and registers a dashboard
// client, reusing cmd/dashboard/websocket.go's ping/pong pump shape
// (30s ping ticker, 60s read-deadline reset on pong), extended with
// §6.4's subscribe/unsubscribe/ping client control messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		http.Error(w, "push transport not configured", http.StatusServiceUnavailable)
		return
	}

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("httpapi: websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	client := &dashboard.Client{ID: r.RemoteAddr, Send: make(chan interface{}, 256)}
	s.broadcaster.Register(client)
	defer s.broadcaster.Unregister(client)

	s.logger.Printf("httpapi: websocket client connected from %s", client.ID)

	go s.wsWritePump(ws, client)
	s.wsReadPump(ws, client)
}

func (s *Server) wsWritePump(ws *websocket.Conn, client *dashboard.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteJSON(message); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Printf("httpapi: websocket write error for %s: %v", client.ID, err)
				}
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) wsReadPump(ws *websocket.Conn, client *dashboard.Client) {
	defer func() {
		s.logger.Printf("httpapi: websocket client disconnected from %s", client.ID)
	}()

	ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	var filter dashboard.Filter

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Printf("httpapi: websocket read error for %s: %v", client.ID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var ctl controlMessage
		if err := json.Unmarshal(data, &ctl); err != nil {
			s.logger.Printf("httpapi: websocket bad control message from %s: %v", client.ID, err)
			continue
		}

		switch ctl.Type {
		case "subscribe":
			filter.Symbols = toSet(filter.Symbols, ctl.Symbols)
			filter.AccountIDs = toSet(filter.AccountIDs, ctl.AccountIDs)
			filter.EventKinds = toSet(filter.EventKinds, ctl.EventKinds)
			client.SetFilter(filter)

		case "unsubscribe":
			filter.Symbols = fromSet(filter.Symbols, ctl.Symbols)
			filter.AccountIDs = fromSet(filter.AccountIDs, ctl.AccountIDs)
			filter.EventKinds = fromSet(filter.EventKinds, ctl.EventKinds)
			client.SetFilter(filter)

		case "ping":
			select {
			case client.Send <- dashboard.WebSocketMessage{
				Type:      "heartbeat",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}:
			default:
			}

		default:
			s.logger.Printf("httpapi: websocket unknown control type %q from %s", ctl.Type, client.ID)
		}
	}
}
