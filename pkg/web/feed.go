// Live moderation-event feed over websocket. Every dispatched gateway event is
// mirrored to connected ops clients as a small JSON envelope.
package web

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// FeedEvent is the envelope pushed to feed clients
type FeedEvent struct {
	Kind      string      `json:"kind"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// FeedHub fans live events out to websocket clients. Slow clients are dropped
// rather than allowed to block the publisher.
type FeedHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// el feed es de solo lectura y está detrás del rate limit del servidor
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewFeedHub creates an empty hub
func NewFeedHub() *FeedHub {
	return &FeedHub{clients: make(map[*websocket.Conn]chan []byte)}
}

// Publish mirrors one event to every connected client
func (h *FeedHub) Publish(kind string, payload interface{}) {
	data, err := json.Marshal(FeedEvent{
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo serializar el evento del feed: %v", err), "Feed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- data:
		default:
			// cliente lento: se desconecta para no frenar el despacho
			close(ch)
			delete(h.clients, conn)
			conn.Close()
			logger.Warn("Cliente del feed desconectado por lentitud", "Feed")
		}
	}
}

// ServeWS upgrades the request and streams events until the client goes away
func (h *FeedHub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo abrir la conexión websocket: %v", err), "Feed")
		return
	}

	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	count := len(h.clients)
	h.mu.Unlock()
	logger.Info(fmt.Sprintf("Cliente del feed conectado (%d activos)", count), "Feed")

	// lector: solo para detectar el cierre del cliente
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()

	for data := range ch {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(conn)
			return
		}
	}
}

// drop removes a client, safe to call twice
func (h *FeedHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	ch, ok := h.clients[conn]
	if ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	conn.Close()
}
