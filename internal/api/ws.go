package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/calorily/backend/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler upgrades authenticated clients to a push channel
type WSHandler struct {
	hub *realtime.Hub
}

// NewWSHandler creates a new WSHandler instance
func NewWSHandler(hub *realtime.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Subscribe upgrades the connection and registers it as a push channel for
// the authenticated user. The connection stays open until the client closes
// it or a read fails; clients only listen, inbound messages are drained and
// ignored.
func (h *WSHandler) Subscribe(c *gin.Context) {
	userID := c.GetString("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WSHandler] upgrade failed for user %s: %v", userID, err)
		return
	}

	channel := realtime.NewWSChannel(conn)
	h.hub.Register(userID, channel)
	defer h.hub.Unregister(userID, channel)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[WSHandler] connection closed for user %s: %v", userID, err)
			}
			return
		}
	}
}
