package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Разрешаем все origins (в продакшене нужно ограничить)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler подключает подписчиков к менеджеру событий
type Handler struct {
	manager *Manager
}

// NewHandler создает WebSocket handler
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// HandleWebSocket - GET /ws[?user_id=...].
// С user_id клиент получает только события этого пользователя
// и общие события модели.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("⚠️  WebSocket upgrade не удался: %v", err)
		return
	}

	client := &Client{
		ID:     uuid.New().String(),
		Conn:   conn,
		Send:   make(chan Message, sendBuffer),
		UserID: c.Query("user_id"),
	}
	h.manager.RegisterClient(client)

	go client.WritePump()
	go client.ReadPump(h.manager)
}
