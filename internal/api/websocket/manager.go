package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// MessageType - тип события, отправляемого подписчикам
type MessageType string

const (
	MessageTypeModelRebuilt   MessageType = "model_rebuilt"
	MessageTypeRebuildFailed  MessageType = "rebuild_failed"
	MessageTypeIdentification MessageType = "identification"
	MessageTypeUserEnrolled   MessageType = "user_enrolled"
)

// Message - событие модели или идентификации.
// UserID задан для событий конкретного пользователя.
type Message struct {
	Type    MessageType `json:"type"`
	UserID  string      `json:"user_id,omitempty"`
	Payload interface{} `json:"payload"`
}

// Client - подписчик на события
type Client struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan Message
	UserID string // пользователь, за которым следит клиент (пусто - все события)
}

// Manager рассылает события подписчикам.
// Карта клиентов меняется только в горутине Run.
type Manager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

// NewManager создает новый WebSocket manager
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
	}
}

// Run запускает менеджер (должен работать в отдельной горутине)
func (m *Manager) Run() {
	for {
		select {
		case <-m.done:
			m.mu.Lock()
			for id, client := range m.clients {
				close(client.Send)
				delete(m.clients, id)
			}
			m.mu.Unlock()
			return

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client.ID] = client
			m.mu.Unlock()
			log.Printf("🔌 WebSocket: клиент %s подключен (пользователь: %q)", client.ID, client.UserID)

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client.ID]; ok {
				delete(m.clients, client.ID)
				close(client.Send)
				log.Printf("WebSocket: клиент %s отключен", client.ID)
			}
			m.mu.Unlock()

		case message := <-m.broadcast:
			m.mu.Lock()
			for _, client := range m.clients {
				// Сообщение о конкретном пользователе - только подписанным на него и на все
				if message.UserID != "" && client.UserID != "" && client.UserID != message.UserID {
					continue
				}

				select {
				case client.Send <- message:
				default:
					// Если канал переполнен - отключаем клиента
					close(client.Send)
					delete(m.clients, client.ID)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Stop останавливает Run и закрывает каналы клиентов
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// ClientCount - число подключенных клиентов
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// RegisterClient регистрирует нового клиента
func (m *Manager) RegisterClient(client *Client) {
	select {
	case m.register <- client:
	case <-m.done:
		close(client.Send)
	}
}

// UnregisterClient отключает клиента
func (m *Manager) UnregisterClient(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// Broadcast отправляет сообщение всем клиентам.
// Если очередь переполнена, сообщение отбрасывается.
func (m *Manager) Broadcast(message Message) {
	select {
	case m.broadcast <- message:
	case <-m.done:
	default:
		log.Warnf("⚠️  WebSocket: очередь переполнена, событие %s отброшено", message.Type)
	}
}

// BroadcastModelRebuilt сообщает о пересборке модели
func (m *Manager) BroadcastModelRebuilt(payload interface{}) {
	m.Broadcast(Message{Type: MessageTypeModelRebuilt, Payload: payload})
}

// BroadcastRebuildFailed сообщает о неудачной пересборке
func (m *Manager) BroadcastRebuildFailed(reason string) {
	m.Broadcast(Message{
		Type:    MessageTypeRebuildFailed,
		Payload: map[string]interface{}{"error": reason},
	})
}

// BroadcastUserEnrolled сообщает о новых фотографиях пользователя
func (m *Manager) BroadcastUserEnrolled(userID string, imagesSaved int) {
	m.Broadcast(Message{
		Type:   MessageTypeUserEnrolled,
		UserID: userID,
		Payload: map[string]interface{}{
			"images_saved": imagesSaved,
		},
	})
}

// BroadcastIdentification отправляет результат идентификации
func (m *Manager) BroadcastIdentification(userID string, detected bool, distance float64) {
	m.Broadcast(Message{
		Type:   MessageTypeIdentification,
		UserID: userID,
		Payload: map[string]interface{}{
			"detected": detected,
			"distance": distance,
		},
	})
}

// ReadPump держит соединение открытым и ловит его закрытие.
// Клиенты только слушают, входящие сообщения игнорируются.
func (c *Client) ReadPump(manager *Manager) {
	defer func() {
		manager.UnregisterClient(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("⚠️  WebSocket %s: %v", c.ID, err)
			}
			return
		}
	}
}

// WritePump пишет события клиенту и периодически пингует его
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Менеджер закрыл канал
				c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				log.Debugf("WebSocket %s: запись не удалась: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
