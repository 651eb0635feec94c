package handlers

import (
	"log"
	"net/http"
	"strings"

	"emergency-backend/internal/websocket"
	"emergency-backend/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebSocketHandler upgrades connections onto the push channel. Tokens are
// validated here because browsers cannot set Authorization headers on
// WebSocket upgrades; the token rides in the query string instead.
type WebSocketHandler struct {
	manager *websocket.Manager
	jwtUtil *jwt.JWTUtil
}

func NewWebSocketHandler(manager *websocket.Manager, jwtUtil *jwt.JWTUtil) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		jwtUtil: jwtUtil,
	}
}

// HandleWebSocket authenticates and registers a connection under the
// caller's user identity so targeted alert events reach them.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication token required"})
		return
	}

	claims, err := h.jwtUtil.ValidateToken(token)
	if err != nil {
		log.Printf("WebSocket connection rejected: invalid token - %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	conn, err := h.manager.GetUpgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}

	clientID := uuid.New().String()
	if err := h.manager.RegisterClient(clientID, claims.UserID, conn); err != nil {
		log.Printf("Failed to register WebSocket client: %v", err)
		conn.Close()
		return
	}
}

// GetConnectedUsers reports how many users currently hold a live push
// connection.
func (h *WebSocketHandler) GetConnectedUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connectedUsers": h.manager.ConnectedUsers(),
	})
}
