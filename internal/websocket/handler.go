// internal/websocket/handler.go

package websocket

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/JosueRDx/DotsGo-backend/internal/guard"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, implement proper origin check
	},
}

// MessageHandler consumes one raw inbound frame from a client.
type MessageHandler func(*Client, []byte) error

type Handler struct {
	hub            *Hub
	messageHandler MessageHandler
	logger         *slog.Logger
}

func NewHandler(hub *Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, logger: logger}
}

func (h *Handler) SetMessageHandler(handler MessageHandler) {
	h.messageHandler = handler
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", h.HandleConnection)
}

// HandleConnection upgrades the request and starts the client pumps. The
// handshake metadata is captured here, before the protocol switch, so the
// fingerprint guard can judge later joins.
func (h *Handler) HandleConnection(c *gin.Context) {
	identity := guard.IdentityFromRequest(c.Request)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "ip", identity.IP)
		return
	}

	client := NewClient(h.hub, conn, uuid.New().String(), identity)
	if h.messageHandler != nil {
		client.SetMessageHandler(h.messageHandler)
	}

	h.hub.Register <- client

	go client.ReadPump()
	go client.WritePump()

	h.logger.Debug("websocket connection established", "conn_id", client.ID, "ip", identity.IP)
}
