package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/services/events"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin checks belong to the fronting proxy
	},
}

// WebSocketHandler fans progress events out to connected clients. Each
// connection subscribes to one session channel; delivery is best effort and
// a broken or slow peer is dropped rather than allowed to stall publishing.
type WebSocketHandler struct {
	eventService     *events.Service
	logger           arbor.ILogger
	mu               sync.Mutex
	writeLocks       map[*websocket.Conn]*sync.Mutex
	throttlers       map[string]*rate.Limiter
	serverInstanceID string // Clients use this to detect server restarts
}

// NewWebSocketHandler creates the progress event websocket handler
func NewWebSocketHandler(eventService *events.Service, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		eventService:     eventService,
		logger:           logger,
		writeLocks:       make(map[*websocket.Conn]*sync.Mutex),
		throttlers:       make(map[string]*rate.Limiter),
		serverInstanceID: uuid.New().String(),
	}

	if config != nil {
		for eventName, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("event", eventName).
					Str("interval", intervalStr).
					Msg("Invalid throttle interval - throttling disabled for event")
				continue
			}
			h.throttlers[eventName] = rate.NewLimiter(rate.Every(duration), 1)
		}
	}

	logger.Info().
		Str("server_instance_id", h.serverInstanceID).
		Int("throttled_events", len(h.throttlers)).
		Msg("WebSocket handler initialized")

	return h
}

// ServeHTTP upgrades the connection and streams the requested session's
// progress events until the client disconnects.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.writeLocks[conn] = &sync.Mutex{}
	h.mu.Unlock()

	h.logger.Debug().
		Str("session_id", sessionID).
		Str("remote", r.RemoteAddr).
		Msg("WebSocket client subscribed")

	// Tell the client which server instance it reached
	h.send(conn, events.Event{
		Channel:   sessionID,
		Name:      "connected",
		Payload:   map[string]interface{}{"server_instance_id": h.serverInstanceID},
		Timestamp: time.Now(),
	})

	unsubscribe := h.eventService.Subscribe(sessionID, func(evt events.Event) {
		if limiter, ok := h.throttlers[evt.Name]; ok && !limiter.Allow() {
			return
		}
		h.send(conn, evt)
	})
	defer unsubscribe()

	// Drain reads so close/ping frames are processed; exit on disconnect
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.writeLocks, conn)
	h.mu.Unlock()
	conn.Close()

	h.logger.Debug().
		Str("session_id", sessionID).
		Msg("WebSocket client disconnected")
}

// send writes one event to a connection, serialized per connection. Errors
// just close the peer - events are at-most-once.
func (h *WebSocketHandler) send(conn *websocket.Conn, evt events.Event) {
	h.mu.Lock()
	lock, ok := h.writeLocks[conn]
	h.mu.Unlock()
	if !ok {
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Warn().Err(err).Str("event", evt.Name).Msg("Failed to marshal progress event")
		return
	}

	lock.Lock()
	defer lock.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
	}
}
