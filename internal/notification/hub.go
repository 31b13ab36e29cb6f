package notification

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"escalation-service/internal/logging"
	"escalation-service/internal/models"
)

const (
	maxConnectionsPerUser = 10
	writeWait             = 5 * time.Second
)

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// Event is one message pushed to a browser session.
type Event struct {
	Type         string               `json:"type"`
	Notification *models.Notification `json:"notification,omitempty"`
	URL          string               `json:"url,omitempty"`
}

const (
	EventNotification = "notification"
	EventOpenLink     = "open_link"
)

// Hub tracks the open websocket sessions of each user.
type Hub struct {
	connections map[string]map[Conn]bool // userID -> set of connections
	mutex       sync.Mutex
	writeWait   time.Duration
	logger      *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[Conn]bool),
		writeWait:   writeWait,
		logger:      logger,
	}
}

// AddConnection registers conn for userID. It reports false when the user is
// already at the connection limit.
func (h *Hub) AddConnection(userID string, conn Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[userID]; !exists {
		h.connections[userID] = make(map[Conn]bool)
	}
	if len(h.connections[userID]) >= maxConnectionsPerUser {
		h.logger.Warnf("Max connections reached for user %s", userID)
		return false
	}
	h.connections[userID][conn] = true
	h.logger.Infof("Added WebSocket connection for user %s (total: %d)", userID, len(h.connections[userID]))
	return true
}

func (h *Hub) RemoveConnection(userID string, conn Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conns, exists := h.connections[userID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, userID)
		}
		h.logger.Infof("Removed WebSocket connection for user %s (remaining: %d)", userID, len(conns))
	}
}

// SendToUser writes message to every session of userID and returns how many
// sessions accepted it. Sessions that fail the write, or stall past the write
// deadline, are dropped.
func (h *Hub) SendToUser(userID string, message []byte) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	sent := 0
	if conns, exists := h.connections[userID]; exists {
		for conn := range conns {
			if err := h.write(conn, message); err != nil {
				h.logger.Errorf("Failed to send WebSocket message to user %s: %v", userID, err)
				delete(conns, conn)
				continue
			}
			sent++
		}
		if len(conns) == 0 {
			delete(h.connections, userID)
		}
	}
	return sent
}

func (h *Hub) write(conn Conn, message []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, message)
}

// PushLink asks the user's sessions to open url.
func (h *Hub) PushLink(userID, url string) int {
	return h.push(userID, Event{Type: EventOpenLink, URL: url})
}

// PushNotification delivers a freshly recorded inbox entry.
func (h *Hub) PushNotification(n models.Notification) int {
	return h.push(n.UserID, Event{Type: EventNotification, Notification: &n})
}

func (h *Hub) push(userID string, ev Event) int {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Errorf("Failed to encode %s event for user %s: %v", ev.Type, userID, err)
		return 0
	}
	return h.SendToUser(userID, msg)
}
