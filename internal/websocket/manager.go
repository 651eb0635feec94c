package websocket

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNoConnections is returned when a user has no live connection. The
// fan-out engine treats it as "recipient not notified" and moves on.
var ErrNoConnections = errors.New("user has no active connections")

// Manager implements PushChannel over gorilla websockets. Clients are
// registered under their authenticated user id; Send addresses every
// connection that user currently holds.
type Manager struct {
	byClient   map[string]*Client
	byUser     map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
	done       chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		byClient:   make(map[string]*Client),
		byUser:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is handled by the CORS layer.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		done: make(chan struct{}),
	}
}

// Start begins the manager's registration loop.
func (m *Manager) Start() error {
	go m.run()
	log.Println("Push channel started")
	return nil
}

// Stop closes every connection and ends the loop.
func (m *Manager) Stop() error {
	close(m.done)

	m.mutex.Lock()
	for _, client := range m.byClient {
		close(client.Send)
		if client.Conn != nil {
			client.Conn.Close()
		}
	}
	m.byClient = make(map[string]*Client)
	m.byUser = make(map[string]map[*Client]struct{})
	m.mutex.Unlock()

	log.Println("Push channel stopped")
	return nil
}

func (m *Manager) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			m.byClient[client.ID] = client
			if m.byUser[client.UserID] == nil {
				m.byUser[client.UserID] = make(map[*Client]struct{})
			}
			m.byUser[client.UserID][client] = struct{}{}
			m.mutex.Unlock()
			log.Printf("Client %s registered for user %s", client.ID, client.UserID)
			go m.handleClient(client)

		case client := <-m.unregister:
			m.drop(client)

		case <-ticker.C:
			m.healthCheck()

		case <-m.done:
			return
		}
	}
}

func (m *Manager) drop(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.byClient[client.ID]; !ok {
		return
	}
	delete(m.byClient, client.ID)
	if set := m.byUser[client.UserID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(m.byUser, client.UserID)
		}
	}
	close(client.Send)
	if client.Conn != nil {
		client.Conn.Close()
	}
	log.Printf("Client %s unregistered for user %s", client.ID, client.UserID)
}

// RegisterClient attaches a connection under the given user identity.
func (m *Manager) RegisterClient(clientID, userID string, conn *websocket.Conn) error {
	client := &Client{
		ID:       clientID,
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan Message, 64),
		LastPing: time.Now(),
	}

	select {
	case m.register <- client:
		return nil
	case <-m.done:
		return errors.New("push channel is shut down")
	}
}

// UnregisterClient detaches a connection by its client id.
func (m *Manager) UnregisterClient(clientID string) error {
	m.mutex.RLock()
	client, exists := m.byClient[clientID]
	m.mutex.RUnlock()

	if exists {
		select {
		case m.unregister <- client:
		case <-m.done:
		}
	}
	return nil
}

// Send queues an event for every connection the user holds. The per-client
// handoff is non-blocking: a connection with a full buffer is skipped, and
// slow peers are evicted by the write deadline in writeMessages.
func (m *Manager) Send(userID string, event string, payload interface{}) error {
	msg := Message{
		Event:     event,
		Data:      payload,
		Timestamp: time.Now(),
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	set := m.byUser[userID]
	if len(set) == 0 {
		return ErrNoConnections
	}

	delivered := 0
	for client := range set {
		select {
		case client.Send <- msg:
			delivered++
		default:
			log.Printf("Client %s send buffer full, skipping %s", client.ID, event)
		}
	}
	if delivered == 0 {
		return errors.New("all connections for user " + userID + " are saturated")
	}
	return nil
}

// ConnectedUsers returns the number of distinct users with at least one
// live connection.
func (m *Manager) ConnectedUsers() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.byUser)
}

// GetUpgrader exposes the upgrader for the HTTP handler.
func (m *Manager) GetUpgrader() *websocket.Upgrader {
	return &m.upgrader
}

func (m *Manager) handleClient(client *Client) {
	defer func() {
		select {
		case m.unregister <- client:
		case <-m.done:
		}
	}()

	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.LastPing = time.Now()
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go m.writeMessages(client)

	// The read loop exists to surface pongs and close frames; clients do
	// not send application messages over this channel.
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for client %s: %v", client.ID, err)
			}
			break
		}
	}
}

func (m *Manager) writeMessages(client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(msg); err != nil {
				log.Printf("Error writing to client %s: %v", client.ID, err)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Error pinging client %s: %v", client.ID, err)
				return
			}
		}
	}
}

func (m *Manager) healthCheck() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	for clientID, client := range m.byClient {
		if now.Sub(client.LastPing) > 90*time.Second {
			log.Printf("Client %s timed out, removing", clientID)
			delete(m.byClient, clientID)
			if set := m.byUser[client.UserID]; set != nil {
				delete(set, client)
				if len(set) == 0 {
					delete(m.byUser, client.UserID)
				}
			}
			close(client.Send)
			if client.Conn != nil {
				client.Conn.Close()
			}
		}
	}
}
