package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Message is the wire envelope for push events.
type Message struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Client is one WebSocket connection belonging to an authenticated user. A
// user may hold several connections (multiple devices, multiple tabs).
type Client struct {
	ID       string
	UserID   string
	Conn     *websocket.Conn
	Send     chan Message
	LastPing time.Time
}

// PushChannel is the identity-addressed delivery contract the fan-out
// engine depends on.
type PushChannel interface {
	RegisterClient(clientID, userID string, conn *websocket.Conn) error
	UnregisterClient(clientID string) error
	Send(userID string, event string, payload interface{}) error
	ConnectedUsers() int
	Start() error
	Stop() error
}
